// Package ingest implements job posting fetching, bullet extraction,
// embedding and ingestion.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"careerpilot/ingest-service/internal/model"
)

const (
	httpTimeout       = 15 * time.Second
	fetchMaxRetries   = 3
	fetchRetryBase    = 250 * time.Millisecond
	postedAtAltLayout = "2006-01-02 15:04:05"
)

// ErrRateLimited is returned when the job-search API answers HTTP 429. It is
// never retried at this layer; callers abort the pagination loop instead of
// burning further attempts.
var ErrRateLimited = errors.New("job search API rate limited")

// Fetcher retrieves one page of postings for a (query, location, page)
// triple from the external job-search API.
type Fetcher struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries int
	retryBase  time.Duration
	log        *zap.SugaredLogger
}

// NewFetcher constructs a fetcher with a shared HTTP client.
func NewFetcher(baseURL, apiKey string) *Fetcher {
	return &Fetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		client:     &http.Client{Timeout: httpTimeout},
		maxRetries: fetchMaxRetries,
		retryBase:  fetchRetryBase,
		log:        zap.S().Named("fetcher"),
	}
}

// apiResponse mirrors the top-level job-search JSON response. The postings
// array arrives under "data" or "jobs" depending on the API version.
type apiResponse struct {
	Data []apiPosting `json:"data"`
	Jobs []apiPosting `json:"jobs"`
}

// apiPosting mirrors a single listing. Most fields have an alternate name;
// normalisation picks the first non-empty one.
type apiPosting struct {
	Publisher      string        `json:"job_publisher"`
	Title          string        `json:"job_title"`
	AltTitle       string        `json:"title"`
	Employer       string        `json:"employer_name"`
	AltEmployer    string        `json:"company"`
	EmployerLogo   string        `json:"employer_logo"`
	ApplyLink      string        `json:"job_apply_link"`
	AltApplyLink   string        `json:"url"`
	City           string        `json:"job_city"`
	Country        string        `json:"job_country"`
	AltLocation    string        `json:"job_location"`
	Description    string        `json:"job_description"`
	AltDescription string        `json:"description"`
	PostedAt       string        `json:"job_posted_at_datetime_utc"`
	AltPostedAt    string        `json:"posted_at"`
	IsRemote       bool          `json:"job_is_remote"`
	Highlights     apiHighlights `json:"job_highlights"`
	RequiredSkills []string      `json:"job_required_skills"`
	Duties         []string      `json:"job_duties"`

	// Free-text fallbacks, newline/bullet delimited.
	Qualifications   string `json:"qualifications"`
	Responsibilities string `json:"responsibilities"`
}

type apiHighlights struct {
	Qualifications   []string `json:"Qualifications"`
	Responsibilities []string `json:"Responsibilities"`
}

// FetchPage retrieves a single page of postings. HTTP 429 surfaces as
// ErrRateLimited, other non-2xx statuses as an error carrying status and
// body. Network-level failures are retried with exponential backoff.
func (f *Fetcher) FetchPage(ctx context.Context, query, location string, page int) ([]model.Posting, error) {
	if f.apiKey == "" {
		return nil, fmt.Errorf("JOBSEARCH_API_KEY is not configured; cannot call job search API")
	}

	q := query
	if location != "" {
		q = query + " in " + location
	}

	params := url.Values{}
	params.Set("query", q)
	params.Set("page", strconv.Itoa(page))
	params.Set("num_pages", "1")

	reqURL := f.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-RapidAPI-Key", f.apiKey)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		f.log.Warnw("job search API rate limited", "query", q, "page", page)
		return nil, fmt.Errorf("page %d: %w", page, ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("job search API returned %d: %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	rows := apiResp.Data
	if len(rows) == 0 {
		rows = apiResp.Jobs
	}

	postings := make([]model.Posting, 0, len(rows))
	for _, r := range rows {
		postings = append(postings, normalizePosting(r))
	}

	f.log.Infow("fetched page", "query", q, "page", page, "postings", len(postings))
	return postings, nil
}

// doWithRetry retries network-level failures only; any HTTP response, good
// or bad, is returned to the caller for status handling.
func (f *Fetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	delay := f.retryBase

	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		resp, err := f.client.Do(req.Clone(ctx))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		f.log.Warnw("http GET failed", "attempt", attempt, "error", err)

		if attempt == f.maxRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}

	return nil, fmt.Errorf("http GET after %d attempts: %w", f.maxRetries, lastErr)
}

func normalizePosting(r apiPosting) model.Posting {
	p := model.Posting{
		Publisher:    r.Publisher,
		Title:        pick(r.Title, r.AltTitle),
		EmployerName: pick(r.Employer, r.AltEmployer),
		EmployerLogo: r.EmployerLogo,
		ApplyLink:    pick(r.ApplyLink, r.AltApplyLink),
		Location:     pick(r.AltLocation, joinLocation(r.City, r.Country)),
		Description:  pick(r.Description, r.AltDescription),
		IsRemote:     r.IsRemote,

		QualificationsRaw:         r.Qualifications,
		ResponsibilitiesRaw:       r.Responsibilities,
		HighlightQualifications:   r.Highlights.Qualifications,
		HighlightResponsibilities: r.Highlights.Responsibilities,
		RequiredSkills:            r.RequiredSkills,
		Duties:                    r.Duties,
	}
	p.PostedAt = parsePostedAt(pick(r.PostedAt, r.AltPostedAt))
	return p
}

func pick(primary, alt string) string {
	if primary != "" {
		return primary
	}
	return alt
}

func joinLocation(city, country string) string {
	switch {
	case city == "":
		return country
	case country == "":
		return city
	default:
		return city + ", " + country
	}
}

func parsePostedAt(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, postedAtAltLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
