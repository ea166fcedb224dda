// Package torn provides the core Torn API client with rate limiting, retry
// logic, and error classification, plus the TargetRecord data model.
package torn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skillerious/torn-target-tracker/pkg/ratelimit"
)

// Prometheus metrics for Torn API operations.
var (
	tornRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torn_requests_total",
		Help: "Total Torn API requests by outcome",
	}, []string{"outcome"})

	tornRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "torn_request_duration_seconds",
		Help:    "Torn API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	tornErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torn_errors_total",
		Help: "Total Torn API errors by class",
	}, []string{"class"})

	tornRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torn_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	tornRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "torn_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	tornRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted",
	})
)

// DefaultBaseURL is the production Torn API endpoint.
const DefaultBaseURL = "https://api.torn.com"

// selections requested on every user fetch. Keys without 'profile' access
// simply get those fields omitted; decoding tolerates that.
const userSelections = "basic,profile"

// Config holds the client configuration.
type Config struct {
	// BaseURL of the Torn API. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey forwarded as a query parameter on every request.
	APIKey string

	// UserAgent header sent on every request.
	UserAgent string

	// MaxAttempts is the retry ceiling per fetch, including the first attempt.
	MaxAttempts int

	// BaseBackoff is the first retry delay; doubles per attempt.
	BaseBackoff time.Duration

	// MaxBackoff caps the computed delay, including Retry-After hints.
	MaxBackoff time.Duration

	// Timeout is the hard per-attempt request timeout.
	Timeout time.Duration
}

// DefaultConfig returns the standard client configuration for an API key.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		APIKey:      apiKey,
		UserAgent:   "torn-target-tracker/1.0 (https://github.com/skillerious)",
		MaxAttempts: 5,
		BaseBackoff: 600 * time.Millisecond,
		MaxBackoff:  8 * time.Second,
		Timeout:     10 * time.Second,
	}
}

// Client fetches per-user status records from the Torn API. Every outbound
// attempt passes through the shared rate limiter; retryable failures back off
// exponentially and feed penalties back into the limiter so all workers slow
// down together.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a Torn API client sharing the given limiter.
func New(cfg Config, limiter *ratelimit.Limiter) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 600 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 8 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
		config:  cfg,
		logger:  log.With().Str("component", "torn-client").Logger(),
	}, nil
}

// FetchUser fetches one user's status record, retrying transient failures.
//
// It always returns a usable TargetRecord: on unrecoverable failure the
// record carries only the id and a user-facing Error message. Nothing
// propagates to the caller as a Go error.
func (c *Client) FetchUser(ctx context.Context, userID int64) TargetRecord {
	reqURL := fmt.Sprintf("%s/user/%d?%s", c.config.BaseURL, userID, url.Values{
		"selections": {userSelections},
		"key":        {c.config.APIKey},
	}.Encode())

	start := time.Now()
	defer func() {
		tornRequestDuration.Observe(time.Since(start).Seconds())
	}()

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			tornRequestsTotal.WithLabelValues("cancelled").Inc()
			return errorRecord(userID, msgCancelled)
		}

		// Global rate limit gate before every attempt.
		if !c.limiter.Acquire(ctx) {
			tornRequestsTotal.WithLabelValues("cancelled").Inc()
			return errorRecord(userID, msgCancelled)
		}

		rec, outcome := c.attempt(ctx, userID, reqURL)
		switch outcome.kind {
		case outcomeSuccess:
			tornRequestsTotal.WithLabelValues("ok").Inc()
			return rec

		case outcomeTerminal:
			tornRequestsTotal.WithLabelValues("error").Inc()
			tornErrorsTotal.WithLabelValues(string(outcome.class)).Inc()
			return rec

		case outcomeCancelled:
			tornRequestsTotal.WithLabelValues("cancelled").Inc()
			return errorRecord(userID, msgCancelled)

		case outcomeRetryable:
			tornErrorsTotal.WithLabelValues(string(outcome.class)).Inc()
			if attempt >= c.config.MaxAttempts {
				break
			}
			delay := c.backoff(attempt, outcome.retryAfter)
			if outcome.penalize {
				// Global penalty, not just a local sleep: every concurrent
				// worker observes the server's slow-down signal.
				c.limiter.Penalize(delay)
			}
			tornRetriesTotal.WithLabelValues(string(outcome.class)).Inc()
			tornRetryBackoffSeconds.WithLabelValues(string(outcome.class)).Observe(delay.Seconds())
			if delay >= time.Second {
				c.logger.Info().
					Int64("user_id", userID).
					Int("attempt", attempt).
					Dur("backoff", delay).
					Str("cause", outcome.cause).
					Msg("Backing off before retry")
			}
			if !sleepCtx(ctx, delay) {
				tornRequestsTotal.WithLabelValues("cancelled").Inc()
				return errorRecord(userID, msgCancelled)
			}
		}
	}

	tornRetryExhaustedTotal.Inc()
	tornRequestsTotal.WithLabelValues("exhausted").Inc()
	c.logger.Warn().
		Int64("user_id", userID).
		Int("max_attempts", c.config.MaxAttempts).
		Msg("Retry attempts exhausted")
	return errorRecord(userID, msgGaveUp)
}

// outcomeKind drives the per-attempt state machine in FetchUser.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryable
	outcomeTerminal
	outcomeCancelled
)

type attemptOutcome struct {
	kind       outcomeKind
	class      ErrorClass
	cause      string
	retryAfter time.Duration
	penalize   bool
}

// attempt performs one HTTP request and classifies its result.
func (c *Client) attempt(ctx context.Context, userID int64, reqURL string) (TargetRecord, attemptOutcome) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errorRecord(userID, fmt.Sprintf("Unexpected error: %v", err)),
			attemptOutcome{kind: outcomeTerminal, class: ClassApplication}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return TargetRecord{}, attemptOutcome{kind: outcomeCancelled}
		}
		c.logger.Debug().Err(err).Int64("user_id", userID).Msg("Transport error")
		return TargetRecord{}, attemptOutcome{
			kind:  outcomeRetryable,
			class: ClassNetwork,
			cause: fmt.Sprintf("network: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		class := classifyStatus(resp.StatusCode)
		if retryable(class) {
			return TargetRecord{}, attemptOutcome{
				kind:       outcomeRetryable,
				class:      class,
				cause:      fmt.Sprintf("HTTP %d", resp.StatusCode),
				retryAfter: parseRetryAfter(resp.Header),
				penalize:   true,
			}
		}
		return errorRecord(userID, terminalStatusMessage(resp.StatusCode, class)),
			attemptOutcome{kind: outcomeTerminal, class: class}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TargetRecord{}, attemptOutcome{
			kind:  outcomeRetryable,
			class: ClassNetwork,
			cause: fmt.Sprintf("read body: %v", err),
		}
	}

	// Torn returns 200 even for logical errors; check the embedded error
	// object before mapping the payload.
	payload := decodePayload(body)
	if apiErr := payload.apiError(); apiErr != nil {
		if apiErr.Retryable() {
			return TargetRecord{}, attemptOutcome{
				kind:     outcomeRetryable,
				class:    ClassRateLimit,
				cause:    apiErr.Error(),
				penalize: true,
			}
		}
		return errorRecord(userID, apiErr.UserMessage()),
			attemptOutcome{kind: outcomeTerminal, class: applicationClass(apiErr.Code)}
	}

	return payload.toRecord(userID), attemptOutcome{kind: outcomeSuccess}
}

// backoff computes the delay before the next attempt: exponential with
// jitter, or the server's Retry-After hint plus a small jitter when present.
// Both paths are capped at MaxBackoff.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		jitter := time.Duration((0.05 + rand.Float64()*0.2) * float64(time.Second))
		d := retryAfter + jitter
		if d > c.config.MaxBackoff {
			return c.config.MaxBackoff
		}
		return d
	}

	d := time.Duration(float64(c.config.BaseBackoff) * math.Pow(2, float64(attempt-1)))
	if d > c.config.MaxBackoff {
		d = c.config.MaxBackoff
	}
	return d + time.Duration(rand.Float64()*0.3*float64(d))
}

// terminalStatusMessage maps a terminal HTTP status to its user-facing phrase.
func terminalStatusMessage(status int, class ErrorClass) string {
	switch class {
	case ClassUnauthorized:
		return msgUnauthorized
	case ClassNotFound:
		return msgNotFound
	default:
		return fmt.Sprintf("HTTP %d", status)
	}
}

// applicationClass refines terminal Torn error codes into the taxonomy:
// bad keys surface as unauthorized, unknown ids as not-found.
func applicationClass(code int) ErrorClass {
	switch code {
	case 1, 2, 10, 13, 16, 18:
		return ClassUnauthorized
	case 6:
		return ClassNotFound
	default:
		return ClassApplication
	}
}

// parseRetryAfter reads a Retry-After header as seconds. Torn uses the
// seconds form; HTTP-date values are ignored.
func parseRetryAfter(h http.Header) time.Duration {
	ra := h.Get("Retry-After")
	if ra == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(ra, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// sleepCtx sleeps for d, returning false if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func errorRecord(userID int64, msg string) TargetRecord {
	return TargetRecord{ID: userID, Error: msg}
}

// userPayload is the wire shape of a successful /user response. All fields
// are optional; decoding never fails the whole record over a missing or
// malformed field.
type userPayload struct {
	Name   string          `json:"name"`
	Level  json.RawMessage `json:"level"`
	Status *struct {
		State       string          `json:"state"`
		Description string          `json:"description"`
		Until       json.RawMessage `json:"until"`
	} `json:"status"`
	LastAction *struct {
		Status   string `json:"status"`
		Relative string `json:"relative"`
	} `json:"last_action"`
	Faction *factionPayload `json:"faction"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"error"`
	} `json:"error"`
}

// factionPayload tolerates the id/name key variants different key tiers
// return: faction_name|name and faction_id|ID|id.
type factionPayload struct {
	FactionName string          `json:"faction_name"`
	Name        string          `json:"name"`
	FactionID   json.RawMessage `json:"faction_id"`
	IDUpper     json.RawMessage `json:"ID"`
	ID          json.RawMessage `json:"id"`
}

// decodePayload parses a response body, returning an empty payload on
// malformed JSON so the caller maps it to an all-unknown record.
func decodePayload(body []byte) userPayload {
	var p userPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return userPayload{}
	}
	return p
}

func (p userPayload) apiError() *APIError {
	if p.Error == nil {
		return nil
	}
	return &APIError{Code: p.Error.Code, Message: p.Error.Message}
}

// toRecord maps the wire payload into a TargetRecord. Missing sub-objects
// yield "unknown" field states rather than errors.
func (p userPayload) toRecord(userID int64) TargetRecord {
	rec := TargetRecord{
		ID:          userID,
		Name:        p.Name,
		StatusState: "Unknown",
	}

	// Numeric fields decode leniently: a malformed level or until is
	// treated as absent, never as a failed record.
	if lvl, ok := decodeNumber(p.Level); ok && lvl > 0 {
		rec.Level = int(lvl)
	}

	if p.Status != nil {
		if p.Status.State != "" {
			rec.StatusState = p.Status.State
		}
		rec.StatusDescription = p.Status.Description
		if until, ok := decodeNumber(p.Status.Until); ok && until > 0 {
			rec.StatusUntil = until
		}
	}

	if p.LastAction != nil {
		rec.LastActionStatus = p.LastAction.Status
		rec.LastActionRelative = p.LastAction.Relative
	}

	rec.Faction = p.factionDisplay()

	combined := strings.ToLower(rec.StatusState + " " + rec.StatusDescription)
	rec.OK = strings.Contains(combined, "okay") || strings.Contains(combined, "ok")

	return rec
}

// factionDisplay renders "{name} [{id}]" when both are present, just the
// name when the id is absent, and "" when there is no faction at all.
func (p userPayload) factionDisplay() string {
	if p.Faction == nil {
		return ""
	}
	name := p.Faction.FactionName
	if name == "" {
		name = p.Faction.Name
	}
	if name == "" {
		return ""
	}
	for _, raw := range []json.RawMessage{p.Faction.FactionID, p.Faction.IDUpper, p.Faction.ID} {
		if id, ok := decodeNumber(raw); ok {
			return fmt.Sprintf("%s [%d]", name, id)
		}
	}
	return name
}

// decodeNumber accepts a numeric field given as a JSON number or a numeric
// string; anything else counts as absent.
func decodeNumber(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
