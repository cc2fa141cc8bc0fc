package httpx

import (
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/ports"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/apperr"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/units"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/wire"
)

const (
	statusCreated   = "Product Created"
	statusUpdated   = "Product Updated"
	statusPurchased = "Product Purchased"

	// wideType names the type purchase operands are computed as.
	wideType  = "uint256"
	undefined = "undefined"
)

// Handler serves the marketplace routes.
type Handler struct {
	marketplace ports.MarketplaceService
	accounts    ports.AccountResolver
	probe       ports.LedgerProbe
	port        string
	validate    *validator.Validate
}

// NewHandler initializes the handler. probe may be nil, in which case
// /healthz only reports the account pool.
func NewHandler(marketplace ports.MarketplaceService, accounts ports.AccountResolver, probe ports.LedgerProbe, port string) *Handler {
	return &Handler{
		marketplace: marketplace,
		accounts:    accounts,
		probe:       probe,
		port:        port,
		validate:    newValidator(),
	}
}

// CreateProduct lists a new product under the seller account.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := h.decodeJSON(r, w, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	price, err := units.ToNative(string(req.PriceInEther))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	receipt, err := h.marketplace.CreateProduct(r.Context(), entity.CreateProduct{
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Stock:       req.Stock.Big(),
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, TxResponse{Status: statusCreated, Tx: receipt})
}

// GetProduct returns one product by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	product, err := h.marketplace.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	view, err := productView(product)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ProductResponse{Product: view})
}

// UpdateProduct replaces a product's mutable fields as the seller.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductRequest
	if err := h.decodeJSON(r, w, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	price, err := units.ToNative(string(req.PriceInEther))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	receipt, err := h.marketplace.UpdateProduct(r.Context(), entity.UpdateProduct{
		ID:          req.ID.Big(),
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		IsActive:    *req.IsActive,
		Stock:       req.Stock.Big(),
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, TxResponse{Status: statusUpdated, Tx: receipt})
}

// PurchaseProduct buys quantity units of a product for the selected buyer.
// Both outcomes carry a typeInfo block describing the price calculation.
func (h *Handler) PurchaseProduct(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := h.decodeJSON(r, w, &req); err != nil {
		writeError(w, r, err, failureTypes(&entity.Purchase{Quantity: req.Quantity.Big()}))
		return
	}

	buyer := req.Buyer
	if buyer == "" && req.BuyerIndex.IsSet() {
		if !req.BuyerIndex.IsInt64() {
			writeError(w, r, apperr.New(apperr.KindNoAccountsAvailable, "buyer index %s is out of range", req.BuyerIndex), failureTypes(&entity.Purchase{Quantity: req.Quantity.Big()}))
			return
		}
		buyer = req.BuyerIndex.String()
	}

	purchase, err := h.marketplace.PurchaseProduct(r.Context(), entity.PurchaseRequest{
		ProductID: req.ProductID.Big(),
		Quantity:  req.Quantity.Big(),
		Buyer:     buyer,
	})
	if err != nil {
		writeError(w, r, err, failureTypes(purchase))
		return
	}

	resp := PurchaseResponse{Status: statusPurchased, Tx: purchase.Receipt, Order: purchase.Order}
	resp.TypeInfo.BeforeCalculation.ProductPrice = TypedValue{Value: purchase.ProductPrice, Type: wideType}
	resp.TypeInfo.BeforeCalculation.Quantity = TypedValue{Value: purchase.Quantity, Type: wideType}
	resp.TypeInfo.AfterCalculation.TotalPrice = TypedValue{Value: purchase.TotalPrice, Type: wideType}
	writeJSON(w, http.StatusOK, resp)
}

// SellerProducts lists every product of the seller account.
func (h *Handler) SellerProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.marketplace.SellerProducts(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	views := make([]ProductView, len(products))
	for i, p := range products {
		if views[i], err = productView(p); err != nil {
			writeError(w, r, err, nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, ProductsResponse{Products: views})
}

// OrdersOf lists the order ids placed by the account in the path.
func (h *Handler) OrdersOf(w http.ResponseWriter, r *http.Request) {
	buyer := chi.URLParam(r, "buyer")
	if !common.IsHexAddress(buyer) {
		writeError(w, r, apperr.New(apperr.KindValidation, "buyer %q is not an address", buyer), nil)
		return
	}
	ids, err := h.marketplace.OrdersOf(r.Context(), entity.Account(common.HexToAddress(buyer).Hex()))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, OrderIDsResponse{OrderIDs: nonNil(ids)})
}

// BuyerOrders lists the orders of the buyer selected by the optional
// ?buyer= query parameter (pool index or address), defaulting to the
// default buyer.
func (h *Handler) BuyerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.marketplace.BuyerOrders(r.Context(), r.URL.Query().Get("buyer"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	orders.OrderIDs = nonNil(orders.OrderIDs)
	writeJSON(w, http.StatusOK, orders)
}

// Port identifies the instance answering, for multi-instance deployments.
func (h *Handler) Port(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Running on port %s", h.port)
}

// Health reports whether the ledger node answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Accounts: h.accounts.Size()}
	if h.probe == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	id, err := h.probe.ChainID(r.Context())
	if err != nil {
		slog.WarnContext(r.Context(), "ledger health check failed", "error", err)
		resp.Status = "unavailable"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.ChainID = id
	writeJSON(w, http.StatusOK, resp)
}

func pathInt(r *http.Request, name string) (*big.Int, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	n, err := wire.BigInt(raw)
	if err != nil || n.Sign() < 0 || n.Cmp(units.MaxNative) > 0 {
		return nil, apperr.New(apperr.KindValidation, "%s %q must be a non-negative integer", name, raw)
	}
	return n, nil
}

func productView(p *entity.Product) (ProductView, error) {
	ether, err := units.FromNative(p.Price)
	if err != nil {
		return ProductView{}, err
	}
	return ProductView{Product: p, PriceInEther: ether}, nil
}

func failureTypes(p *entity.Purchase) PurchaseFailureTypes {
	out := PurchaseFailureTypes{ProductPrice: undefined, Quantity: undefined, TotalPrice: undefined}
	if p == nil {
		return out
	}
	if p.ProductPrice != nil {
		out.ProductPrice = wideType
	}
	if p.Quantity != nil {
		out.Quantity = wideType
	}
	if p.TotalPrice != nil {
		out.TotalPrice = wideType
	}
	return out
}

func nonNil(ids []*big.Int) []*big.Int {
	if ids == nil {
		return []*big.Int{}
	}
	return ids
}
