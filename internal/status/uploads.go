package status

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/nsstatus/pkg/models"
)

// notAvailable is shown for optional upload metadata the upstream left empty.
const notAvailable = "n/a"

const neurovaultCollectionURL = "https://neurovault.org/collections/%d"

// BannerKind is the severity of an upload banner.
type BannerKind string

const (
	BannerWarning BannerKind = "warning"
	BannerSuccess BannerKind = "success"
	BannerError   BannerKind = "error"
)

// Banner is one alert line for an upload record. Details is only set on
// error banners and holds every failure diagnostic the upstream returned.
type Banner struct {
	Kind    BannerKind `json:"kind"`
	Message string     `json:"message"`
	Details []string   `json:"details,omitempty"`
}

// UploadSummary is the display form of one NeuroVault upload batch.
type UploadSummary struct {
	CollectionID    int      `json:"collection_id"`
	CollectionURL   string   `json:"collection_url"`
	UploadedAt      string   `json:"uploaded_at"`
	Estimator       string   `json:"estimator"`
	FmriprepVersion string   `json:"fmriprep_version"`
	CLIVersion      string   `json:"cli_version"`
	Banners         []Banner `json:"banners"`
}

// Banners derives the pending, success and failure banners for a record.
// The three are independent: a record with pending, ok and failed images
// yields all three, in that order.
func Banners(r models.UploadRecord) []Banner {
	banners := []Banner{}
	if r.Pending > 0 {
		banners = append(banners, Banner{
			Kind:    BannerWarning,
			Message: fmt.Sprintf("%d/%d image uploads pending", r.Pending, r.Total),
		})
	}
	if r.OK > 0 {
		banners = append(banners, Banner{
			Kind:    BannerSuccess,
			Message: fmt.Sprintf("%d/%d image uploads succeeded", r.OK, r.Total),
		})
	}
	if r.Failed > 0 {
		details := make([]string, len(r.Tracebacks))
		copy(details, r.Tracebacks)
		banners = append(banners, Banner{
			Kind:    BannerError,
			Message: fmt.Sprintf("%d/%d image uploads failed", r.Failed, r.Total),
			Details: details,
		})
	}
	return banners
}

// Summarize converts upload records for display. It returns nil for an
// empty list so that callers render no upload section at all.
func Summarize(records []models.UploadRecord) []UploadSummary {
	if len(records) == 0 {
		return nil
	}

	out := make([]UploadSummary, 0, len(records))
	for _, r := range records {
		out = append(out, UploadSummary{
			CollectionID:    r.ID,
			CollectionURL:   fmt.Sprintf(neurovaultCollectionURL, r.ID),
			UploadedAt:      uploadDate(r.UploadedAt),
			Estimator:       orNotAvailable(r.Estimator),
			FmriprepVersion: orNotAvailable(r.FmriprepVersion),
			CLIVersion:      orNotAvailable(r.CLIVersion),
			Banners:         Banners(r),
		})
	}
	return out
}

// uploadDate keeps the date part of an ISO timestamp.
func uploadDate(ts *string) string {
	if ts == nil || *ts == "" {
		return notAvailable
	}
	date, _, _ := strings.Cut(*ts, "T")
	return date
}

func orNotAvailable(s *string) string {
	if s == nil || *s == "" {
		return notAvailable
	}
	return *s
}
