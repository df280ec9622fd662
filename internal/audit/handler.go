package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marco-erp/ledger/internal/platform/httpx"
	"github.com/marco-erp/ledger/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
	r.Get("/{entity}/{entityID}", h.trail)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Company", "company scope required")
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	filters := TimelineFilters{
		CompanyID: companyID,
		Actor:     q.Get("actor"),
		Entity:    q.Get("entity"),
		Action:    q.Get("action"),
		Page:      page,
		PageSize:  pageSize,
	}
	if from := q.Get("from"); from != "" {
		if ts, err := time.Parse("2006-01-02", from); err == nil {
			filters.From = ts
		}
	}
	if to := q.Get("to"); to != "" {
		if ts, err := time.Parse("2006-01-02", to); err == nil {
			filters.To = ts.AddDate(0, 0, 1)
		}
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) trail(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	trail, err := h.service.EntityTrail(r.Context(), companyID, chi.URLParam(r, "entity"), chi.URLParam(r, "entityID"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"trail": trail})
}
