package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/nsstatus/internal/metrics"
	"github.com/kiranshivaraju/nsstatus/pkg/models"
)

// Props is what the surrounding application knows about the analysis being
// displayed. Status is the raw upstream value and may be nil.
type Props struct {
	AnalysisID string
	Status     *string
	Name       string
	Private    bool
	UserOwns   bool
	ModifiedAt string
}

// PropsFromAnalysis builds display props from an upstream analysis record.
func PropsFromAnalysis(a *models.Analysis, userOwns bool) Props {
	return Props{
		AnalysisID: a.ID,
		Status:     a.Status,
		Name:       a.Name,
		Private:    a.Private,
		UserOwns:   userOwns,
		ModifiedAt: a.ModifiedAt,
	}
}

// CanonicalStatus resolves the raw status.
func (p Props) CanonicalStatus() models.AnalysisStatus {
	return models.ResolveStatus(p.Status)
}

// Fetcher is the read side of the Neuroscout API used by a Tracker.
type Fetcher interface {
	CompileTraceback(ctx context.Context, id string) (string, error)
	Uploads(ctx context.Context, id string) ([]models.UploadRecord, error)
	ImageVersion(ctx context.Context) (string, error)
}

// Snapshot is a point-in-time copy of a tracker's display state.
type Snapshot struct {
	Traceback    string
	Uploads      []models.UploadRecord
	ImageVersion string
}

// Tracker owns the fetched display state for one status page: the compile
// traceback, the NeuroVault uploads and the CLI image version.
//
// Fetches run in background goroutines that outlive the caller's context.
// Results are last-write-wins. Fetch errors are logged and counted, never
// returned, and the previously stored value stays in place.
type Tracker struct {
	fetcher Fetcher
	timeout time.Duration

	statusMemo memo[models.AnalysisStatus]
	idMemo     memo[string]

	mu           sync.Mutex
	traceback    string
	uploads      []models.UploadRecord
	imageVersion string

	flightMu sync.Mutex
	inFlight int
	idle     chan struct{}
}

// NewTracker creates a Tracker. timeout bounds each background fetch;
// zero means no bound beyond the fetcher's own.
func NewTracker(f Fetcher, timeout time.Duration) *Tracker {
	return &Tracker{fetcher: f, timeout: timeout}
}

// OnAttach starts the initial fetches for a newly displayed analysis and
// records p as the baseline for later change detection.
func (t *Tracker) OnAttach(ctx context.Context, p Props) {
	t.statusMemo.prime(p.CanonicalStatus())
	t.idMemo.prime(p.AnalysisID)

	if p.AnalysisID != "" {
		t.fetchTraceback(ctx, p.AnalysisID)
		t.fetchUploads(ctx, p.AnalysisID)
	}
	t.fetchImageVersion(ctx)
}

// OnPropsChanged refetches the traceback when the status becomes FAILED
// and refetches everything analysis-specific when the id changes. Each
// trigger only compares against the immediately preceding value.
func (t *Tracker) OnPropsChanged(ctx context.Context, prev, next Props) {
	t.statusMemo.Do(next.CanonicalStatus(), func(s models.AnalysisStatus) {
		if s != models.StatusFailed || next.AnalysisID == "" {
			return
		}
		slog.Debug("analysis transitioned to FAILED",
			"analysis_id", next.AnalysisID,
			"from", prev.CanonicalStatus().String(),
		)
		t.fetchTraceback(ctx, next.AnalysisID)
	})

	t.idMemo.Do(next.AnalysisID, func(id string) {
		if id == "" {
			return
		}
		t.fetchTraceback(ctx, id)
		t.fetchUploads(ctx, id)
	})
}

// Snapshot returns a copy of the current display state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	var uploads []models.UploadRecord
	if t.uploads != nil {
		uploads = make([]models.UploadRecord, len(t.uploads))
		copy(uploads, t.uploads)
	}
	return Snapshot{
		Traceback:    t.traceback,
		Uploads:      uploads,
		ImageVersion: t.imageVersion,
	}
}

// Wait blocks until no fetch is in flight or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	t.flightMu.Lock()
	if t.inFlight == 0 {
		t.flightMu.Unlock()
		return nil
	}
	idle := t.idle
	t.flightMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) fetchTraceback(ctx context.Context, id string) {
	t.spawn(ctx, metrics.FetchTraceback, id, func(ctx context.Context) (bool, error) {
		tb, err := t.fetcher.CompileTraceback(ctx, id)
		if err != nil || tb == "" {
			return false, err
		}
		t.mu.Lock()
		t.traceback = tb
		t.mu.Unlock()
		return true, nil
	})
}

func (t *Tracker) fetchUploads(ctx context.Context, id string) {
	t.spawn(ctx, metrics.FetchUploads, id, func(ctx context.Context) (bool, error) {
		records, err := t.fetcher.Uploads(ctx, id)
		if err != nil || records == nil {
			return false, err
		}
		t.mu.Lock()
		t.uploads = records
		t.mu.Unlock()
		return true, nil
	})
}

func (t *Tracker) fetchImageVersion(ctx context.Context) {
	t.spawn(ctx, metrics.FetchImageVersion, "", func(ctx context.Context) (bool, error) {
		v, err := t.fetcher.ImageVersion(ctx)
		if err != nil || v == "" {
			return false, err
		}
		t.mu.Lock()
		t.imageVersion = v
		t.mu.Unlock()
		return true, nil
	})
}

// spawn runs fn in a goroutine detached from ctx's cancellation. fn reports
// whether it stored a value.
func (t *Tracker) spawn(ctx context.Context, kind, id string, fn func(context.Context) (bool, error)) {
	t.begin()
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer t.done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in status fetch", "error", r, "kind", kind, "analysis_id", id)
				metrics.IncFetch(kind, metrics.OutcomeError)
			}
		}()

		if t.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.timeout)
			defer cancel()
		}

		stored, err := fn(ctx)
		switch {
		case err != nil:
			slog.Warn("status fetch failed", "kind", kind, "analysis_id", id, "error", err)
			metrics.IncFetch(kind, metrics.OutcomeError)
		case !stored:
			metrics.IncFetch(kind, metrics.OutcomeEmpty)
		default:
			metrics.IncFetch(kind, metrics.OutcomeOK)
		}
	}()
}

func (t *Tracker) begin() {
	t.flightMu.Lock()
	if t.inFlight == 0 {
		t.idle = make(chan struct{})
	}
	t.inFlight++
	t.flightMu.Unlock()
}

func (t *Tracker) done() {
	t.flightMu.Lock()
	t.inFlight--
	if t.inFlight == 0 {
		close(t.idle)
	}
	t.flightMu.Unlock()
}
