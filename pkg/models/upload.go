package models

// UploadRecord is one batch of result images pushed to NeuroVault for an
// analysis. Records are server-owned snapshots and never edited locally.
type UploadRecord struct {
	ID              int      `json:"id"`
	UploadedAt      *string  `json:"uploaded_at,omitempty"`
	Estimator       *string  `json:"estimator,omitempty"`
	FmriprepVersion *string  `json:"fmriprep_version,omitempty"`
	CLIVersion      *string  `json:"cli_version,omitempty"`
	Total           int      `json:"total"`
	OK              int      `json:"ok"`
	Pending         int      `json:"pending"`
	Failed          int      `json:"failed"`
	Tracebacks      []string `json:"tracebacks"`
}
