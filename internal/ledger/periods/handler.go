package periods

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
	"github.com/marco-erp/ledger/internal/platform/httpx"
	"github.com/marco-erp/ledger/internal/shared"
)

type Handler struct {
	service  *Service
	repo     Repository
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, repo Repository, validate *validator.Validate) *Handler {
	return &Handler{service: service, repo: repo, logger: logger, validate: validate}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/years", h.generateYear)
	r.Get("/years/{yearID}/periods", h.listPeriods)
	r.Get("/check", h.check)
	r.Post("/{periodID}/lock", h.transition(func(s *Service) transitionFunc { return s.LockPeriod }))
	r.Post("/{periodID}/close", h.transition(func(s *Service) transitionFunc { return s.ClosePeriod }))
	r.Post("/{periodID}/reopen", h.transition(func(s *Service) transitionFunc { return s.ReopenPeriod }))
}

type generateYearRequest struct {
	Year int `json:"year" validate:"required,min=1900,max=2999"`
}

func (h *Handler) generateYear(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Company", "company scope required")
		return
	}
	var req generateYearRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	year, err := h.service.GenerateYear(r.Context(), companyID, req.Year, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, year)
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	yearID, err := strconv.ParseInt(chi.URLParam(r, "yearID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "year id must be numeric")
		return
	}
	periods, err := h.repo.ListPeriods(r.Context(), companyID, yearID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": periods})
}

// check answers whether a date is currently postable. Advisory only; posting
// re-checks inside its transaction.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
		return
	}
	window, err := h.service.CanPost(r.Context(), companyID, date)
	if err != nil {
		switch {
		case errors.Is(err, lshared.ErrNoOpenPeriod),
			errors.Is(err, lshared.ErrPeriodLocked),
			errors.Is(err, lshared.ErrPeriodClosed),
			errors.Is(err, lshared.ErrYearInactive):
			httpx.JSON(w, http.StatusOK, map[string]any{"postable": false, "reason": err.Error()})
		default:
			h.respondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"postable": true, "year_id": window.YearID, "period_id": window.PeriodID})
}

type transitionRequest struct {
	Version int64 `json:"version" validate:"required,min=1"`
}

type transitionFunc func(ctx context.Context, companyID, periodID, version int64, actor shared.Actor) (FiscalPeriod, error)

func (h *Handler) transition(pick func(*Service) transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, _ := shared.CompanyFromContext(r.Context())
		periodID, err := strconv.ParseInt(chi.URLParam(r, "periodID"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "period id must be numeric")
			return
		}
		var req transitionRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		actor, _ := shared.ActorFromContext(r.Context())
		period, err := pick(h.service)(r.Context(), companyID, periodID, req.Version, actor)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, period)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	httpx.RespondError(w, h.logger, err)
}
