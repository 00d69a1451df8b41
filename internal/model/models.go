// Package model defines shared data structures for the ingest service.
package model

import "time"

// Category mirrors the categories table row driving one recurring search.
// last_fetched_at doubles as the freshness marker and the round-robin cursor:
// the unscoped claim picks the active category with the oldest (or NULL)
// value. Only the claim step mutates it.
type Category struct {
	ID            string
	Name          string
	Location      string
	Active        bool
	LastFetchedAt *time.Time
}

// Posting is one normalised job advertisement fetched from the external
// job-search API. Dedup identity is ApplyLink when present, otherwise the
// composite (Title, EmployerName, Location).
type Posting struct {
	Publisher    string
	Title        string
	EmployerName string
	EmployerLogo string
	ApplyLink    string
	Location     string
	Description  string
	PostedAt     *time.Time
	IsRemote     bool

	// Raw free-text fields kept for the extraction fallback chain and stored
	// verbatim on the job row.
	QualificationsRaw   string
	ResponsibilitiesRaw string

	// Structured source fields, present for some publishers only.
	HighlightQualifications   []string
	HighlightResponsibilities []string
	RequiredSkills            []string
	Duties                    []string

	// Extracted bullets, populated by the worker before storing.
	Skills           []Bullet
	Responsibilities []Bullet
}

// Bullet is one extracted line of free text attached to a posting. A nil
// Embedding persists as a NULL vector (partial degradation, not failure).
type Bullet struct {
	Text      string
	Required  bool
	Embedding []float32
}

// IngestResult is the outcome of one category worker run. The same shape is
// returned by scheduled and manual runs.
type IngestResult struct {
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped bool   `json:"skipped,omitempty"`
	Err     string `json:"error,omitempty"`
}

// ErrRateLimited is the Err value for a run aborted by an HTTP 429 from the
// job-search API.
const ErrRateLimited = "rate_limited"
