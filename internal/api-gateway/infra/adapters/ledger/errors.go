package ledger

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/jcmexdev/marketplace-gateway/internal/pkg/apperr"
)

// classify maps an RPC-layer failure onto an apperr kind. Errors that are
// already classified pass through unchanged.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return apperr.Wrap(apperr.KindLedgerTimeout, err, "%s timed out", method)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.KindLedgerRPC, err, "%s cancelled", method)
	}

	if reason, ok := revertReason(err); ok {
		return apperr.Reverted(method, reason, err)
	}
	return apperr.Wrap(apperr.KindLedgerRPC, err, "%s", method)
}

// Known revert message shapes: geth reports "execution reverted: <reason>",
// Ganache "VM Exception while processing transaction: revert <reason>".
var revertPrefixes = []string{
	"execution reverted: ",
	"execution reverted",
	"VM Exception while processing transaction: revert ",
	"VM Exception while processing transaction: revert",
}

// revertReason extracts the revert reason carried by err. The boolean
// reports whether err describes a contract-level rejection at all.
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := reasonFromData(dataErr.ErrorData()); ok {
			return reason, true
		}
	}

	msg := err.Error()
	for _, prefix := range revertPrefixes {
		if i := strings.Index(msg, prefix); i >= 0 {
			return strings.TrimSpace(msg[i+len(prefix):]), true
		}
	}
	if strings.Contains(msg, "out of gas") {
		return "out of gas", true
	}
	if strings.Contains(msg, "revert") {
		return "", true
	}
	return "", false
}

// reasonFromData decodes the error data attached to a JSON-RPC error. geth
// and recent Ganache send the ABI-encoded Error(string) payload as hex; older
// Ganache sends an object keyed by transaction hash holding a "reason" field.
func reasonFromData(data any) (string, bool) {
	switch d := data.(type) {
	case string:
		raw, err := hexutil.Decode(d)
		if err != nil || len(raw) < 4 {
			return "", false
		}
		reason, err := abi.UnpackRevert(raw)
		if err != nil {
			return "", true
		}
		return reason, true
	case map[string]any:
		if r, ok := d["reason"].(string); ok {
			return r, true
		}
		for _, v := range d {
			if reason, ok := reasonFromData(v); ok {
				return reason, true
			}
		}
	}
	return "", false
}
