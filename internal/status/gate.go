package status

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/nsstatus/pkg/models"
)

// ErrGenerateNotAllowed is returned when a generate request reaches a closed gate.
var ErrGenerateNotAllowed = errors.New("generate not allowed")

// MissingNameWarning is shown while the analysis has no name.
const MissingNameWarning = "Analysis needs name to be generated"

// DisableValidationPrompt is the confirmation shown before turning validation off.
var DisableValidationPrompt = Prompt{
	Title: "Disable validation of model?",
	Content: "Disabling validation of the model will speed up bundle generation " +
		"but can lead to unexpected errors at runtime. Use at your own risk!",
}

// GateInput is everything the Generate action depends on.
// ValidationEnabled does not affect the decision; it only travels with the request.
type GateInput struct {
	TermsAccepted     bool
	ValidationEnabled bool
	Status            models.AnalysisStatus
	Name              string
}

// CanGenerate reports whether the Generate action is enabled: the terms are
// accepted, the analysis is DRAFT or FAILED, and it has a name.
func CanGenerate(in GateInput) bool {
	return in.TermsAccepted && in.Status.Editable() && in.Name != ""
}

// Blockers lists why the gate is closed, in display order. It is empty
// exactly when CanGenerate is true.
func (in GateInput) Blockers() []string {
	var out []string
	if !in.TermsAccepted {
		out = append(out, "Terms of service must be accepted")
	}
	if !in.Status.Editable() {
		out = append(out, fmt.Sprintf("Analysis status %s does not allow generation", in.Status))
	}
	if in.Name == "" {
		out = append(out, MissingNameWarning)
	}
	return out
}

// Prompt is a blocking yes/no question put to the user.
type Prompt struct {
	Title   string
	Content string
}

// Confirmer asks the user to accept or decline a prompt and blocks until
// they answer.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) bool

// Confirm calls f(ctx, p).
func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) bool {
	return f(ctx, p)
}

// SubmitFunc forwards a confirmed generate request. validate is the value of
// the validation toggle at the moment the user pressed Generate.
type SubmitFunc func(ctx context.Context, validate bool) error

// SubmissionIntent is the transient form state behind the Generate button.
// It is never persisted.
type SubmissionIntent struct {
	mu                sync.Mutex
	termsAccepted     bool
	validationEnabled bool
}

// NewSubmissionIntent creates form state for an analysis in the given status.
// Analyses that were already submitted once are treated as having accepted
// the terms.
func NewSubmissionIntent(status models.AnalysisStatus) *SubmissionIntent {
	return &SubmissionIntent{
		termsAccepted:     status != models.StatusDraft,
		validationEnabled: true,
	}
}

// SetTermsAccepted sets the terms checkbox.
func (s *SubmissionIntent) SetTermsAccepted(accepted bool) {
	s.mu.Lock()
	s.termsAccepted = accepted
	s.mu.Unlock()
}

// SetValidation changes the validation toggle. Enabling applies at once.
// Disabling asks c first and leaves the toggle unchanged when declined or
// when c is nil. It returns the resulting value.
func (s *SubmissionIntent) SetValidation(ctx context.Context, enabled bool, c Confirmer) bool {
	if !enabled && (c == nil || !c.Confirm(ctx, DisableValidationPrompt)) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.validationEnabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.validationEnabled = enabled
	return s.validationEnabled
}

// TermsAccepted returns the current terms checkbox value.
func (s *SubmissionIntent) TermsAccepted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termsAccepted
}

// ValidationEnabled returns the current validation toggle value.
func (s *SubmissionIntent) ValidationEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validationEnabled
}

// Input builds the gate input for this form state.
func (s *SubmissionIntent) Input(status models.AnalysisStatus, name string) GateInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return GateInput{
		TermsAccepted:     s.termsAccepted,
		ValidationEnabled: s.validationEnabled,
		Status:            status,
		Name:              name,
	}
}

// Generate checks the gate and calls submit with the validation value read
// once, at call time. Later toggles do not affect a request already made.
func (s *SubmissionIntent) Generate(ctx context.Context, status models.AnalysisStatus, name string, submit SubmitFunc) error {
	in := s.Input(status, name)
	if !CanGenerate(in) {
		return ErrGenerateNotAllowed
	}
	return submit(ctx, in.ValidationEnabled)
}
