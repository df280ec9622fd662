package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marco-erp/ledger/internal/platform/httpx"
	"github.com/marco-erp/ledger/internal/shared"
)

type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
	observe  func(movementType, result string)
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{service: service, logger: logger, validate: validate}
}

// ObserveMovements registers a callback fed with movement outcomes, typically
// a Prometheus counter.
func (h *Handler) ObserveMovements(fn func(movementType, result string)) {
	h.observe = fn
}

func (h *Handler) observed(movementType string, err error) {
	if h.observe == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		result = "rejected"
	case errors.Is(err, shared.ErrIdempotencyConflict):
		result = "duplicate"
	default:
		result = "error"
	}
	h.observe(movementType, result)
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.receipt)
	r.Post("/issues", h.issue)
	r.Post("/adjustments", h.adjust)
	r.Post("/transfers", h.transfer)
	r.Get("/stock-card", h.stockCard)
	r.Get("/stock", h.stock)
}

type movementRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	ProductID   int64  `json:"product_id" validate:"required"`
	Qty         string `json:"qty" validate:"required"`
	UnitCost    string `json:"unit_cost"`
	SourceDoc   string `json:"source_doc"`
	SourceID    string `json:"source_id"`
	Note        string `json:"note"`
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	companyID, req, qty, cost, sourceID, ok := h.decodeMovement(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	movement, err := h.service.Receipt(r.Context(), ReceiptInput{
		CompanyID: companyID, WarehouseID: req.WarehouseID, ProductID: req.ProductID,
		Qty: qty, UnitCost: cost, SourceDoc: req.SourceDoc, SourceID: sourceID,
		Note: req.Note, Actor: actor,
	})
	h.observed(string(MovementReceipt), err)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	companyID, req, qty, _, sourceID, ok := h.decodeMovement(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	movement, err := h.service.Issue(r.Context(), IssueInput{
		CompanyID: companyID, WarehouseID: req.WarehouseID, ProductID: req.ProductID,
		Qty: qty, SourceDoc: req.SourceDoc, SourceID: sourceID, Note: req.Note, Actor: actor,
	})
	h.observed(string(MovementIssue), err)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	companyID, req, qty, cost, _, ok := h.decodeMovement(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	movement, err := h.service.Adjust(r.Context(), AdjustmentInput{
		CompanyID: companyID, WarehouseID: req.WarehouseID, ProductID: req.ProductID,
		Qty: qty, UnitCost: cost, Note: req.Note, Actor: actor,
	})
	h.observed("ADJUST", err)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

type transferRequest struct {
	SrcWarehouse int64  `json:"src_warehouse" validate:"required"`
	DstWarehouse int64  `json:"dst_warehouse" validate:"required"`
	ProductID    int64  `json:"product_id" validate:"required"`
	Qty          string `json:"qty" validate:"required"`
	Note         string `json:"note"`
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Company", "company scope required")
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", "qty must be a decimal number")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		CompanyID: companyID, SrcWarehouse: req.SrcWarehouse, DstWarehouse: req.DstWarehouse,
		ProductID: req.ProductID, Qty: qty, Note: req.Note, Actor: actor,
	})
	h.observed("TRANSFER", err)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"out": out, "in": in})
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	movements, err := h.service.StockCard(r.Context(), StockCardFilter{
		CompanyID: companyID, WarehouseID: warehouseID, ProductID: productID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) stock(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	stock, err := h.service.Stock(r.Context(), companyID, warehouseID, productID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) decodeMovement(w http.ResponseWriter, r *http.Request) (int64, movementRequest, decimal.Decimal, decimal.Decimal, uuid.UUID, bool) {
	var zero movementRequest
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Company", "company scope required")
		return 0, zero, decimal.Zero, decimal.Zero, uuid.Nil, false
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return 0, zero, decimal.Zero, decimal.Zero, uuid.Nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return 0, zero, decimal.Zero, decimal.Zero, uuid.Nil, false
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", "qty must be a decimal number")
		return 0, zero, decimal.Zero, decimal.Zero, uuid.Nil, false
	}
	cost := decimal.Zero
	if req.UnitCost != "" {
		cost, err = decimal.NewFromString(req.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", "unit_cost must be a decimal number")
			return 0, zero, decimal.Zero, decimal.Zero, uuid.Nil, false
		}
	}
	sourceID := uuid.Nil
	if req.SourceID != "" {
		sourceID, err = uuid.Parse(req.SourceID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Source", "source_id must be a UUID")
			return 0, zero, decimal.Zero, decimal.Zero, uuid.Nil, false
		}
	}
	return companyID, req, qty, cost, sourceID, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Movement", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrStockNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Movement", err.Error())
	default:
		httpx.RespondError(w, h.logger, err)
	}
}
