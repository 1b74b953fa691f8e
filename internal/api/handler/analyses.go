package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/nsstatus/internal/api/middleware"
	"github.com/kiranshivaraju/nsstatus/internal/api/response"
	"github.com/kiranshivaraju/nsstatus/internal/metrics"
	"github.com/kiranshivaraju/nsstatus/internal/neuroscout"
	"github.com/kiranshivaraju/nsstatus/internal/status"
	"github.com/kiranshivaraju/nsstatus/internal/store"
	"github.com/kiranshivaraju/nsstatus/pkg/models"
)

const (
	defaultSubmissionLimit = 20
	maxSubmissionLimit     = 100
)

// Submission results recorded in metrics.
const (
	submitForwarded     = "forwarded"
	submitRejected      = "rejected"
	submitUnconfirmed   = "unconfirmed"
	submitUpstreamError = "upstream_error"
)

// Analyses serves the status endpoints for a single analysis.
type Analyses struct {
	client   neuroscout.Client
	registry *status.Registry
	renderer status.Renderer
	store    store.Store
	// settle bounds how long a read waits for fetches it just triggered.
	settle time.Duration
}

// NewAnalyses creates the analysis handlers.
func NewAnalyses(c neuroscout.Client, reg *status.Registry, r status.Renderer, s store.Store, settle time.Duration) *Analyses {
	return &Analyses{client: c, registry: reg, renderer: r, store: s, settle: settle}
}

// observed is one request's view of an analysis after it was fed to the registry.
type observed struct {
	props   status.Props
	tracker *status.Tracker
}

// observe loads the analysis from upstream and reports it to the registry so
// that attach and transition fetches run. Keys with the submit scope are
// treated as the analysis owner.
func (h *Analyses) observe(w http.ResponseWriter, r *http.Request) (*observed, bool) {
	id := chi.URLParam(r, "id")

	a, err := h.client.Analysis(r.Context(), id)
	if err != nil {
		writeUpstreamError(w, err)
		return nil, false
	}

	props := status.PropsFromAnalysis(a, mw.HasScope(r, models.ScopeSubmit))
	return &observed{props: props, tracker: h.registry.Observe(r.Context(), props)}, true
}

// snapshot waits briefly for in-flight fetches, then copies tracker state.
func (h *Analyses) snapshot(ctx context.Context, o *observed) status.Snapshot {
	if h.settle > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, h.settle)
		defer cancel()
		// partial data is fine
		_ = o.tracker.Wait(waitCtx)
	}
	return o.tracker.Snapshot()
}

// View handles GET /api/v1/analyses/{id}/view.
func (h *Analyses) View(w http.ResponseWriter, r *http.Request) {
	o, ok := h.observe(w, r)
	if !ok {
		return
	}
	response.JSON(w, h.renderer.Render(o.props, h.snapshot(r.Context(), o), nil))
}

// Uploads handles GET /api/v1/analyses/{id}/uploads.
func (h *Analyses) Uploads(w http.ResponseWriter, r *http.Request) {
	o, ok := h.observe(w, r)
	if !ok {
		return
	}
	summaries := status.Summarize(h.snapshot(r.Context(), o).Uploads)
	if summaries == nil {
		summaries = []status.UploadSummary{}
	}
	response.JSON(w, summaries)
}

type submitRequest struct {
	TermsAccepted *bool `json:"terms_accepted" validate:"required"`
	Validate      *bool `json:"validate" validate:"required"`
	// ConfirmDisableValidation answers the confirmation shown before
	// validation is turned off.
	ConfirmDisableValidation bool `json:"confirm_disable_validation"`
}

type submitResponse struct {
	AnalysisID string    `json:"analysis_id"`
	Validate   bool      `json:"validate"`
	EventID    uuid.UUID `json:"event_id"`
}

// Submit handles POST /api/v1/analyses/{id}/submit. It runs the form state
// through the generate gate and forwards a compile request upstream.
func (h *Analyses) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	o, ok := h.observe(w, r)
	if !ok {
		return
	}
	current := o.props.CanonicalStatus()

	intent := status.NewSubmissionIntent(current)
	intent.SetTermsAccepted(*req.TermsAccepted)

	// a closed gate wins over a pending confirmation
	if in := intent.Input(current, o.props.Name); !status.CanGenerate(in) {
		rejectSubmission(w, in)
		return
	}

	confirm := status.ConfirmFunc(func(context.Context, status.Prompt) bool {
		return req.ConfirmDisableValidation
	})
	validate := intent.SetValidation(r.Context(), *req.Validate, confirm)
	if validate != *req.Validate {
		metrics.IncSubmission(submitUnconfirmed)
		response.Error(w, http.StatusBadRequest, "CONFIRMATION_REQUIRED",
			status.DisableValidationPrompt.Title, status.DisableValidationPrompt)
		return
	}

	err := intent.Generate(r.Context(), current, o.props.Name, func(ctx context.Context, enabled bool) error {
		return h.client.Compile(ctx, o.props.AnalysisID, enabled)
	})
	switch {
	case errors.Is(err, status.ErrGenerateNotAllowed):
		rejectSubmission(w, intent.Input(current, o.props.Name))
		return
	case err != nil:
		metrics.IncSubmission(submitUpstreamError)
		writeUpstreamError(w, err)
		return
	}
	metrics.IncSubmission(submitForwarded)

	event := &models.SubmissionEvent{
		ID:         uuid.New(),
		AnalysisID: o.props.AnalysisID,
		Validate:   validate,
		CreatedAt:  time.Now().UTC(),
	}
	if keyID, ok := mw.GetAPIKeyID(r); ok {
		event.APIKeyID = &keyID
	}
	if err := h.store.CreateSubmissionEvent(r.Context(), event); err != nil {
		// the compile request already went out
		slog.Warn("failed to record submission", "analysis_id", event.AnalysisID, "error", err)
	}

	response.Accepted(w, submitResponse{
		AnalysisID: o.props.AnalysisID,
		Validate:   validate,
		EventID:    event.ID,
	})
}

func rejectSubmission(w http.ResponseWriter, in status.GateInput) {
	metrics.IncSubmission(submitRejected)
	response.Error(w, http.StatusConflict, "GENERATE_NOT_ALLOWED",
		"Analysis cannot be generated", in.Blockers())
}

type visibilityRequest struct {
	Private *bool `json:"private" validate:"required"`
}

// Visibility handles PUT /api/v1/analyses/{id}/visibility.
func (h *Analyses) Visibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.client.UpdateAnalysis(r.Context(), id, models.AnalysisPatch{Private: req.Private}); err != nil {
		writeUpstreamError(w, err)
		return
	}

	response.JSON(w, map[string]any{
		"analysis_id": id,
		"private":     *req.Private,
	})
}

// Submissions handles GET /api/v1/analyses/{id}/submissions.
func (h *Analyses) Submissions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSubmissionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxSubmissionLimit)
	}

	events, err := h.store.ListSubmissionEvents(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list submissions", nil)
		return
	}
	if events == nil {
		events = []*models.SubmissionEvent{}
	}
	response.List(w, events, len(events), limit)
}
