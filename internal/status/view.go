package status

import (
	"fmt"

	"github.com/kiranshivaraju/nsstatus/pkg/models"
	"github.com/kiranshivaraju/nsstatus/pkg/runcmd"
)

// SectionKind tags which variant of a Section is populated.
type SectionKind string

const (
	SectionSubmissionForm     SectionKind = "submission_form"
	SectionPendingNotice      SectionKind = "pending_notice"
	SectionRunInstructions    SectionKind = "run_instructions"
	SectionUnknownNotice      SectionKind = "unknown_notice"
	SectionSystemRequirements SectionKind = "system_requirements"
	SectionTraceback          SectionKind = "traceback"
)

const (
	cliDocsURL    = "https://neuroscout.github.io/neuroscout/cli/"
	dockerDocsURL = "https://docs.docker.com/install/"

	tracebackMessage = "Analysis failed to compile"
)

const (
	termsHeading    = "Terms for analysis generation:"
	termsAgreement  = "I have read and agree to Neuroscout's terms of service"
	validationLabel = "Validate design matrix construction for all runs (reduces the chance " +
		"of run-time errors, but can substantially increase bundle compilation time.)"
)

var baseTerms = []string{
	"I agree that once I submit my analysis, I will not be able to delete or edit it.",
	"I agree if I publish results stemming from this analysis, I must make public, and cite all relevant analyses.",
	"I understand that the statistical maps generated by this analysis will be automatically uploaded " +
		"to the NeuroVault website by default (users may opt-out at run-time).",
}

const (
	privateTerm = "I understand that although my analysis is currently private, anyone with the " +
		"analysis ID may view this analysis, and subsequent uploaded results."
	publicTerm = "I understand that my analysis is currently public and will be searchable by other users."
)

// Terms returns the clauses a user agrees to before generating a bundle.
// The last clause depends on the analysis visibility.
func Terms(private bool) []string {
	terms := make([]string, 0, len(baseTerms)+1)
	terms = append(terms, baseTerms...)
	if private {
		return append(terms, privateTerm)
	}
	return append(terms, publicTerm)
}

// View is everything a status page displays for one analysis.
type View struct {
	AnalysisID  string                `json:"analysis_id"`
	Status      models.AnalysisStatus `json:"status"`
	Header      Header                `json:"header"`
	DownloadURL string                `json:"download_url,omitempty"`
	Primary     Section               `json:"primary"`
	Secondary   *Section              `json:"secondary,omitempty"`
	Uploads     []UploadSummary       `json:"uploads,omitempty"`
}

// Header is the line above the status-specific content.
type Header struct {
	Status     models.AnalysisStatus `json:"status"`
	ModifiedAt string                `json:"modified_at"`
	// Visibility is "Public" or "Private" and only set for the owner.
	Visibility string `json:"visibility,omitempty"`
}

// Section is a tagged union; exactly one pointer matching Kind is set.
type Section struct {
	Kind         SectionKind         `json:"kind"`
	Form         *SubmissionForm     `json:"form,omitempty"`
	Notice       *Notice             `json:"notice,omitempty"`
	Run          *RunInstructions    `json:"run,omitempty"`
	Requirements *SystemRequirements `json:"requirements,omitempty"`
	Traceback    *TracebackPanel     `json:"traceback,omitempty"`
}

// SubmissionForm is the generate form shown for DRAFT and FAILED analyses.
type SubmissionForm struct {
	NameWarning       string   `json:"name_warning,omitempty"`
	TermsHeading      string   `json:"terms_heading"`
	Terms             []string `json:"terms"`
	ValidationLabel   string   `json:"validation_label"`
	AgreementLabel    string   `json:"agreement_label"`
	ValidationEnabled bool     `json:"validation_enabled"`
	TermsAccepted     bool     `json:"terms_accepted"`
	// ShowGenerate is false when there is no analysis id to submit.
	ShowGenerate bool `json:"show_generate"`
	CanGenerate  bool `json:"can_generate"`
}

// Notice is a titled message with an optional body.
type Notice struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// RunInstructions tells the user how to run a compiled bundle.
type RunInstructions struct {
	Title        string `json:"title"`
	Congratulate string `json:"congratulate,omitempty"`
	Command      string `json:"command"`
	DocsURL      string `json:"docs_url"`
}

// SystemRequirements lists what a machine needs to run a bundle.
type SystemRequirements struct {
	Title         string `json:"title"`
	OS            string `json:"os"`
	DockerDocsURL string `json:"docker_docs_url"`
	RAM           string `json:"ram"`
	Disk          string `json:"disk"`
}

// TracebackPanel shows the compile error of a FAILED analysis.
type TracebackPanel struct {
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
}

// Renderer turns props and fetched state into a View.
// Zero value renders with the default image and no download origin.
type Renderer struct {
	ServerRoot string
	Image      string
	OutputDir  string

	builder runcmd.Builder
}

// Render dispatches on the canonical status. intent carries the form state
// for DRAFT and FAILED; nil uses the defaults for a freshly opened form.
func (r Renderer) Render(p Props, snap Snapshot, intent *SubmissionIntent) View {
	status := p.CanonicalStatus()

	v := View{
		AnalysisID:  p.AnalysisID,
		Status:      status,
		Header:      header(p, status),
		DownloadURL: DownloadLink(r.ServerRoot, status, p.AnalysisID),
		Uploads:     Summarize(snap.Uploads),
	}

	switch status {
	case models.StatusDraft:
		v.Primary = r.formSection(p, status, intent)
	case models.StatusPending, models.StatusSubmitting:
		v.Primary = Section{Kind: SectionPendingNotice, Notice: &Notice{
			Title: "Analysis Pending Generation",
			Body:  "Analysis generation may take some time. This page will update when complete.",
		}}
	case models.StatusPassed:
		v.Primary = r.runSection(p, snap)
		v.Secondary = &Section{Kind: SectionSystemRequirements, Requirements: &SystemRequirements{
			Title:         "System Requirements",
			OS:            "Windows/Linux/Mac OS with Docker",
			DockerDocsURL: dockerDocsURL,
			RAM:           "8GB+ RAM",
			Disk:          "4GB + ~1 GB/subject",
		}}
	case models.StatusFailed:
		v.Primary = r.formSection(p, status, intent)
		v.Secondary = &Section{Kind: SectionTraceback, Traceback: &TracebackPanel{
			Message:   tracebackMessage,
			Traceback: snap.Traceback,
		}}
	default:
		v.Primary = Section{Kind: SectionUnknownNotice, Notice: &Notice{
			Title: "Unknown analysis status",
			Body:  fmt.Sprintf("The analysis reported status %q.", status.String()),
		}}
	}

	return v
}

// DownloadLink returns the bundle URL, or "" unless the analysis has passed
// and has an id.
func DownloadLink(serverRoot string, status models.AnalysisStatus, id string) string {
	if status != models.StatusPassed || id == "" {
		return ""
	}
	return fmt.Sprintf("%s/analyses/%s_bundle.tar.gz", serverRoot, id)
}

func header(p Props, status models.AnalysisStatus) Header {
	h := Header{Status: status, ModifiedAt: p.ModifiedAt}
	if p.UserOwns {
		h.Visibility = "Public"
		if p.Private {
			h.Visibility = "Private"
		}
	}
	return h
}

func (r Renderer) formSection(p Props, status models.AnalysisStatus, intent *SubmissionIntent) Section {
	if intent == nil {
		intent = NewSubmissionIntent(status)
	}
	in := intent.Input(status, p.Name)

	form := &SubmissionForm{
		TermsHeading:      termsHeading,
		Terms:             Terms(p.Private),
		ValidationLabel:   validationLabel,
		AgreementLabel:    termsAgreement,
		ValidationEnabled: in.ValidationEnabled,
		TermsAccepted:     in.TermsAccepted,
		ShowGenerate:      p.AnalysisID != "",
		CanGenerate:       CanGenerate(in),
	}
	if p.Name == "" {
		form.NameWarning = MissingNameWarning
	}
	return Section{Kind: SectionSubmissionForm, Form: form}
}

func (r Renderer) runSection(p Props, snap Snapshot) Section {
	run := &RunInstructions{
		Title: "Analysis Passed",
		Command: r.builder.Build(runcmd.Params{
			Image:      r.Image,
			Version:    snap.ImageVersion,
			OutputDir:  r.OutputDir,
			AnalysisID: p.AnalysisID,
		}),
		DocsURL: cliDocsURL,
	}
	if p.UserOwns {
		run.Congratulate = "Congratulations, your analysis has been compiled!"
	}
	return Section{Kind: SectionRunInstructions, Run: run}
}
