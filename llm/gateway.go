package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Schema is implemented by the target struct of a generate_structured call.
// Validate reports semantic problems json.Unmarshal alone cannot catch
// (missing required fields, out-of-range values); it stands in for the
// schema-validation step of spec.md 4.2 step 4.
type Schema interface {
	Validate() error
}

// Config is the gateway's runtime configuration, all overridable from the
// environment per spec.md 6.
type Config struct {
	Provider        string
	BaseURL         string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	TimeoutSeconds  int
	MaxRetries      int // spec.md LLM_MAX_RETRIES; default 2 retries = 3 attempts
}

// DefaultConfig mirrors spec.md 6's documented defaults.
func DefaultConfig() Config {
	return Config{
		Provider:        "gemini",
		Model:           "gemini-1.5-flash",
		Temperature:     0.4,
		MaxOutputTokens: 800,
		TimeoutSeconds:  30,
		MaxRetries:      2,
	}
}

// Gateway implements generate_structured (spec.md 4.2): template render,
// retry loop, structured validation, one repair round-trip, telemetry.
type Gateway struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *gobreaker.CircuitBreaker
	telemetry  TelemetrySink
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option { return func(g *Gateway) { g.httpClient = c } }
func WithLogger(l *slog.Logger) Option     { return func(g *Gateway) { g.logger = l } }
func WithTelemetrySink(s TelemetrySink) Option {
	return func(g *Gateway) { g.telemetry = s }
}
func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(g *Gateway) { g.breaker = cb }
}

// NewGateway constructs a Gateway. A circuit breaker is installed by
// default around the provider HTTP call: with gobreaker's default trip
// rule, more than five consecutive failed calls (of any error class) open
// it, and it then fails fast for a 30-second cooldown window without
// changing the retry/classification semantics spec.md 4.2 mandates (an
// additive enrichment, see SPEC_FULL.md DOMAIN STACK).
func NewGateway(cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		logger: slog.Default(),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "llm-provider",
			MaxRequests: 1,
			Interval:    0,
			Timeout:     30 * time.Second,
		}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateStructured renders (promptName, promptVersion), issues the
// provider call with retry, validates the JSON response against out, and
// performs at most one repair round-trip on validation failure. Exactly
// one CallRecord is emitted for the whole invocation, covering any repair.
func (g *Gateway) GenerateStructured(ctx context.Context, purpose, promptName, promptVersion string, variables map[string]string, out Schema) error {
	tmpl, ok := GetPrompt(promptName, promptVersion)
	if !ok {
		err := NewFatalError(fmt.Errorf("unknown prompt %s@%s", promptName, promptVersion))
		g.emit(CallRecord{Purpose: purpose, PromptName: promptName, PromptVersion: promptVersion, OK: false, ErrorType: "unknown_prompt"})
		return err
	}

	traceID := uuid.NewString()
	start := time.Now()

	maxTokens := g.cfg.MaxOutputTokens
	if purpose == "parse_matrix" && maxTokens < 8192 {
		maxTokens = 8192
	}

	vars := cloneVars(variables)
	if _, ok := vars["__REPAIR_INSTRUCTIONS__"]; !ok {
		vars["__REPAIR_INSTRUCTIONS__"] = ""
	}

	text, retries, err := g.callWithRetry(ctx, tmpl, vars, maxTokens)
	if err != nil {
		g.emit(g.record(traceID, purpose, promptName, promptVersion, start, retries, false, errorType(err)))
		return err
	}

	if verr := unmarshalValidate(text, out); verr != nil {
		repairVars := cloneVars(variables)
		repairVars["__REPAIR_INSTRUCTIONS__"] = repairInstructions

		text2, retries2, err2 := g.callWithRetry(ctx, tmpl, repairVars, maxTokens)
		retries += retries2
		if err2 != nil {
			g.emit(g.record(traceID, purpose, promptName, promptVersion, start, retries, false, errorType(err2)))
			return err2
		}

		if verr2 := unmarshalValidate(text2, out); verr2 != nil {
			err3 := NewFatalError(fmt.Errorf("repair attempt still invalid: %w", verr2))
			g.emit(g.record(traceID, purpose, promptName, promptVersion, start, retries, false, "validation_error"))
			return err3
		}
	}

	g.emit(g.record(traceID, purpose, promptName, promptVersion, start, retries, true, ""))
	return nil
}

func (g *Gateway) record(traceID, purpose, promptName, promptVersion string, start time.Time, retries int, ok bool, errType string) CallRecord {
	return CallRecord{
		TraceID:       traceID,
		Provider:      g.cfg.Provider,
		Model:         g.cfg.Model,
		Purpose:       purpose,
		PromptName:    promptName,
		PromptVersion: promptVersion,
		LatencyMs:     time.Since(start).Milliseconds(),
		Retries:       retries,
		OK:            ok,
		ErrorType:     errType,
	}
}

func (g *Gateway) emit(r CallRecord) {
	if g.telemetry != nil {
		g.telemetry(r)
	}
}

// callWithRetry issues the rendered prompt against the provider, retrying
// transient failures up to cfg.MaxRetries times with the backoff formula
// from retry.go. It returns the raw response text and the number of
// retries actually taken.
func (g *Gateway) callWithRetry(ctx context.Context, tmpl PromptTemplate, vars map[string]string, maxTokens int) (string, int, error) {
	rendered := renderTemplate(tmpl.Template, vars)

	var lastErr error
	attempts := g.cfg.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		text, err := g.doRequest(ctx, rendered, maxTokens)
		if err == nil {
			return text, attempt, nil
		}
		lastErr = err

		if IsFatal(err) {
			return "", attempt, err
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return "", attempt, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}
	}

	return "", attempts - 1, lastErr
}

func (g *Gateway) doRequest(ctx context.Context, prompt string, maxTokens int) (string, error) {
	provider := GetProvider(g.cfg.Provider)
	if provider == nil {
		return "", NewFatalError(fmt.Errorf("unknown LLM provider: %s", g.cfg.Provider))
	}

	result, err := g.breaker.Execute(func() (any, error) {
		return g.doProviderCall(ctx, provider, prompt, maxTokens)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", NewTransientError(fmt.Errorf("llm circuit open: %w", err))
		}
		return "", err
	}
	return result.(string), nil
}

func (g *Gateway) doProviderCall(ctx context.Context, provider Provider, prompt string, maxTokens int) (string, error) {
	url := provider.BuildURL(g.cfg.BaseURL, g.cfg.Model)

	body, err := provider.BuildRequestBody(g.cfg.Model, prompt, g.cfg.Temperature, maxTokens, "application/json")
	if err != nil {
		return "", NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", NewTransientError(fmt.Errorf("llm HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return "", NewTransientError(fmt.Errorf("read llm response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", classifyHTTPError(httpResp.StatusCode, respBody)
	}

	parsed, err := provider.ParseResponse(respBody)
	if err != nil {
		return "", NewFatalError(fmt.Errorf("parse llm response: %w", err))
	}
	return parsed.Text, nil
}

// classifyHTTPError mirrors spec.md 4.2's retry policy: 429/5xx are
// retryable; auth/malformed-request errors are fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}
	err := fmt.Errorf("llm provider error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return NewTransientError(err)
	default:
		return NewFatalError(err)
	}
}

func errorType(err error) string {
	switch {
	case IsFatal(err):
		return "fatal"
	case IsTransient(err):
		return "transient"
	default:
		return "unknown"
	}
}

func cloneVars(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// unmarshalValidate extracts JSON from a raw LLM response (stripping
// markdown fences / trailing commas via ExtractJSON), unmarshals it into
// out, and runs out's Validate. Any failure at either step is treated as
// "structured validation failed", triggering the repair round-trip.
func unmarshalValidate(text string, out Schema) error {
	raw := ExtractJSON(text)
	if raw == "" {
		raw = text
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("unmarshal structured response: %w", err)
	}
	return out.Validate()
}
