package models

// Analysis is the subset of an upstream analysis record the status page needs.
type Analysis struct {
	ID         string  `json:"hash_id"`
	Name       string  `json:"name"`
	Status     *string `json:"status,omitempty"`
	Private    bool    `json:"private"`
	ModifiedAt string  `json:"modified_at,omitempty"`
}

// AnalysisPatch carries the fields that may be changed from the status page.
type AnalysisPatch struct {
	Private *bool `json:"private,omitempty"`
}
