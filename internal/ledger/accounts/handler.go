package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
	"github.com/marco-erp/ledger/internal/platform/httpx"
	"github.com/marco-erp/ledger/internal/shared"
)

type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{service: service, logger: logger, validate: validate}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{accountID}", h.get)
	r.Put("/{accountID}", h.update)
	r.Delete("/{accountID}", h.delete)
}

type createRequest struct {
	Code         string `json:"code" validate:"required"`
	Name         string `json:"name" validate:"required"`
	LocalName    string `json:"local_name"`
	Type         string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	ParentID     *int64 `json:"parent_id"`
	AllowPosting bool   `json:"allow_posting"`
}

type updateRequest struct {
	Version      int64  `json:"version" validate:"required,min=1"`
	Name         string `json:"name" validate:"required"`
	LocalName    string `json:"local_name"`
	ParentID     *int64 `json:"parent_id"`
	AllowPosting bool   `json:"allow_posting"`
	IsActive     bool   `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Company", "company scope required")
		return
	}
	accounts, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	account, err := h.service.Get(r.Context(), companyID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	created, err := h.service.Create(r.Context(), CreateInput{
		CompanyID:    companyID,
		Code:         req.Code,
		Name:         req.Name,
		LocalName:    req.LocalName,
		Type:         AccountType(req.Type),
		ParentID:     req.ParentID,
		AllowPosting: req.AllowPosting,
		Actor:        actor,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	updated, err := h.service.Update(r.Context(), UpdateInput{
		CompanyID:    companyID,
		ID:           id,
		Version:      req.Version,
		Name:         req.Name,
		LocalName:    req.LocalName,
		ParentID:     req.ParentID,
		AllowPosting: req.AllowPosting,
		IsActive:     req.IsActive,
		Actor:        actor,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Version", "version query parameter required")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), companyID, id, version, actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lshared.ErrAccountCycle), errors.Is(err, lshared.ErrSystemAccount):
		httpx.Problem(w, http.StatusConflict, "Rejected", err.Error())
	default:
		httpx.RespondError(w, h.logger, err)
	}
}
