package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/jcmexdev/marketplace-gateway/internal/pkg/apperr"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/wire"
)

const maxBodyBytes = 1 << 20

// writeJSON serializes v with every wide integer rendered as a decimal string.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := wire.Marshal(v)
	if err != nil {
		slog.Error("encode response", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response","code":"Unknown"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// writeError is the single translation from a failure to the HTTP error
// shape. Every failure kind is reported as 400 with its kind as code.
func writeError(w http.ResponseWriter, r *http.Request, err error, typeInfo any) {
	writeErrorStatus(w, r, http.StatusBadRequest, err, typeInfo)
}

// writeErrorStatus writes the error shape with an explicit status. Routing
// and middleware failures (404, 405, 429, 500) keep their own status.
func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error, typeInfo any) {
	kind := apperr.KindOf(err)
	slog.WarnContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"code", kind,
		"error", err,
	)
	writeJSON(w, status, ErrorResponse{
		Error:    err.Error(),
		Code:     string(kind),
		TypeInfo: typeInfo,
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeErrorStatus(w, r, http.StatusNotFound,
		apperr.New(apperr.KindNotFound, "no route for %s %s", r.Method, r.URL.Path), nil)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeErrorStatus(w, r, http.StatusMethodNotAllowed,
		apperr.New(apperr.KindValidation, "method %s is not allowed on %s", r.Method, r.URL.Path), nil)
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	writeErrorStatus(w, r, http.StatusTooManyRequests,
		apperr.New(apperr.KindRateLimited, "too many requests, retry later"), nil)
}

// recoverer turns a handler panic into a 500 error payload.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.ErrorContext(r.Context(), "panic serving request",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			writeErrorStatus(w, r, http.StatusInternalServerError,
				apperr.New(apperr.KindUnknown, "internal server error"), nil)
		}()
		next.ServeHTTP(w, r)
	})
}

// requestTimeout bounds the request context. Ledger calls that run out of
// time fail as LedgerTimeout and are answered by the handler itself.
func requestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// decodeJSON reads a request body into dst and validates it.
func (h *Handler) decodeJSON(r *http.Request, w http.ResponseWriter, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.KindValidation, "request body is required")
		}
		return apperr.Wrap(apperr.KindValidation, err, "malformed request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}
