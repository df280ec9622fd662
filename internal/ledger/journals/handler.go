package journals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
	"github.com/marco-erp/ledger/internal/platform/httpx"
	"github.com/marco-erp/ledger/internal/shared"
)

type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
	observe  func(kind, result string)
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{service: service, logger: logger, validate: validate}
}

// ObservePostings registers a callback fed with posting outcomes, typically
// a Prometheus counter.
func (h *Handler) ObservePostings(fn func(kind, result string)) {
	h.observe = fn
}

func (h *Handler) observed(kind string, err error) {
	if h.observe == nil {
		return
	}
	h.observe(kind, outcomeLabel(err))
}

func outcomeLabel(err error) string {
	var verr *lshared.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, shared.ErrResourceContention):
		return "contention"
	case errors.As(err, &verr),
		errors.Is(err, lshared.ErrNoOpenPeriod),
		errors.Is(err, lshared.ErrPeriodLocked),
		errors.Is(err, lshared.ErrPeriodClosed),
		errors.Is(err, lshared.ErrYearInactive),
		errors.Is(err, lshared.ErrAccountNotPostable),
		errors.Is(err, lshared.ErrAlreadyPosted),
		errors.Is(err, lshared.ErrAlreadyReversed),
		errors.Is(err, lshared.ErrNotPosted):
		return "rejected"
	}
	return "error"
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.createDraft)
	r.Get("/next-number", h.nextNumber)
	r.Get("/{entryID}", h.get)
	r.Put("/{entryID}", h.updateDraft)
	r.Delete("/{entryID}", h.deleteDraft)
	r.Post("/{entryID}/post", h.post)
	r.Post("/{entryID}/reverse", h.reverse)
	r.Post("/{entryID}/adjust", h.adjust)
}

type lineRequest struct {
	LineNumber   int    `json:"line_number" validate:"required,min=1"`
	AccountID    int64  `json:"account_id" validate:"required"`
	Debit        string `json:"debit"`
	Credit       string `json:"credit"`
	Description  string `json:"description"`
	CostCenterID *int64 `json:"cost_center_id"`
	WarehouseID  *int64 `json:"warehouse_id"`
}

type draftRequest struct {
	Date        string        `json:"date" validate:"required"`
	Description string        `json:"description" validate:"required"`
	Reference   string        `json:"reference"`
	SourceType  string        `json:"source_type" validate:"required"`
	SourceID    string        `json:"source_id"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Company", "company scope required")
		return
	}
	entries, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	entry, err := h.service.Get(r.Context(), companyID, entryID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	candidate, ok := h.decodeCandidate(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	created, err := h.service.CreateDraft(r.Context(), candidate, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateDraft(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Version", "version query parameter required")
		return
	}
	candidate, ok := h.decodeCandidate(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	updated, err := h.service.UpdateDraft(r.Context(), entryID, version, candidate, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) nextNumber(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Company", "company scope required")
		return
	}
	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	code, err := h.service.NextNumber(r.Context(), companyID, date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"next_number": code})
}

type postRequest struct {
	Version int64 `json:"version" validate:"required,min=1"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.Post(r.Context(), companyID, entryID, req.Version, actor)
	h.observed("post", err)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	reversal, err := h.service.Reverse(r.Context(), ReverseInput{CompanyID: companyID, EntryID: entryID, Reason: req.Reason}, actor)
	h.observed("reverse", err)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	candidate, ok := h.decodeCandidate(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	created, err := h.service.CreateAdjustment(r.Context(), candidate, entryID, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) deleteDraft(w http.ResponseWriter, r *http.Request) {
	companyID, _ := shared.CompanyFromContext(r.Context())
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Version", "version query parameter required")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteDraft(r.Context(), companyID, entryID, version, actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeCandidate(w http.ResponseWriter, r *http.Request) (CandidateEntry, bool) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Company", "company scope required")
		return CandidateEntry{}, false
	}
	var req draftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return CandidateEntry{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CandidateEntry{}, false
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
		return CandidateEntry{}, false
	}
	sourceID := uuid.Nil
	if req.SourceID != "" {
		sourceID, err = uuid.Parse(req.SourceID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Source", "source_id must be a UUID")
			return CandidateEntry{}, false
		}
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		debit, err := parseAmount(l.Debit)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", "debit must be a decimal number")
			return CandidateEntry{}, false
		}
		credit, err := parseAmount(l.Credit)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", "credit must be a decimal number")
			return CandidateEntry{}, false
		}
		lines = append(lines, LineInput{
			LineNumber:   l.LineNumber,
			AccountID:    l.AccountID,
			Debit:        debit,
			Credit:       credit,
			Description:  l.Description,
			CostCenterID: l.CostCenterID,
			WarehouseID:  l.WarehouseID,
		})
	}
	return CandidateEntry{
		CompanyID:   companyID,
		Date:        date,
		Description: req.Description,
		Reference:   req.Reference,
		Source:      SourceRef{Type: SourceType(req.SourceType), ID: sourceID},
		Lines:       lines,
	}, true
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var verr *lshared.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Entry", verr.Error())
	case errors.Is(err, lshared.ErrJournalNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, lshared.ErrNoOpenPeriod),
		errors.Is(err, lshared.ErrPeriodLocked),
		errors.Is(err, lshared.ErrPeriodClosed),
		errors.Is(err, lshared.ErrYearInactive),
		errors.Is(err, lshared.ErrAccountNotPostable),
		errors.Is(err, lshared.ErrAlreadyPosted),
		errors.Is(err, lshared.ErrAlreadyReversed),
		errors.Is(err, lshared.ErrNotPosted):
		httpx.Problem(w, http.StatusConflict, "Posting Rejected", err.Error())
	default:
		httpx.RespondError(w, h.logger, err)
	}
}
