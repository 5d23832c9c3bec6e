package alignment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/pulsegrid/intelflow/metrics"
	"github.com/pulsegrid/intelflow/model"
)

// Config configures the Anthropic-backed alignment client (§6
// "Configuration: LM endpoint URL, model, timeout (15s), max retries (1),
// retry delay (1.5s), rate-limit window (60s) and max (10)").
type Config struct {
	APIKey           string
	BaseURL          string
	Model            string
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	RateLimitWindow  time.Duration
	RateLimitMax     int
}

// DefaultConfig returns §6's defaults, leaving APIKey/BaseURL for the caller to fill in.
func DefaultConfig() Config {
	return Config{
		Model:           anthropic.ModelClaude3_5HaikuLatest,
		Timeout:         15 * time.Second,
		MaxRetries:      1,
		RetryDelay:      1500 * time.Millisecond,
		RateLimitWindow: 60 * time.Second,
		RateLimitMax:    10,
	}
}

// AnthropicClient implements Client against the real Anthropic Messages API,
// wrapped in a circuit breaker (§7) and a per-workspace rate limiter (§5).
// The timeout/retry shape is grounded on the teacher's hand-rolled
// agents/anthropic/client.go, ported onto the real anthropics/anthropic-sdk-go
// module instead of the teacher's bespoke HTTP plumbing. The client does no
// prompt caching and no token-usage tracking.
type AnthropicClient struct {
	api        anthropic.Client
	model      string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	breaker    *gobreaker.CircuitBreaker
	limiter    *workspaceLimiter
	log        *zap.Logger
}

// NewAnthropicClient wires the SDK client, breaker, and limiter from cfg.
// The SDK's own retry loop is disabled (option.WithMaxRetries(0)) so this
// package's single retry-with-delay (§5) is the only one in play, and the
// per-call timeout is enforced by context rather than the SDK default.
func NewAnthropicClient(cfg Config, log *zap.Logger) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alignment-lm",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("alignment circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &AnthropicClient{
		api:        anthropic.NewClient(opts...),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		breaker:    breaker,
		limiter:    newWorkspaceLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		log:        log,
	}
}

// Analyze asks the LM whether req's feature has drifted from its recent
// commit history. A workspace that has exhausted its rate-limit budget, a
// tripped breaker, a timeout, or a 5xx all yield the same deterministic
// fallback and ErrUpstreamUnavailable (§7) — callers never have to
// distinguish those causes to decide what to do next.
func (c *AnthropicClient) Analyze(ctx context.Context, req Request) (*Result, error) {
	if !c.limiter.allow(req.WorkspaceID) {
		c.log.Debug("alignment rate limit exceeded, skipping upstream call", zap.String("workspace_id", req.WorkspaceID))
		metrics.AlignmentCalls.WithLabelValues("fallback").Inc()
		return fallbackResult(), ErrUpstreamUnavailable
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callWithRetry(ctx, req)
	})
	if err != nil {
		c.log.Warn("alignment analyze failed, returning fallback",
			zap.String("workspace_id", req.WorkspaceID), zap.String("feature_id", req.FeatureID), zap.Error(err))
		metrics.AlignmentCalls.WithLabelValues("fallback").Inc()
		return fallbackResult(), ErrUpstreamUnavailable
	}
	metrics.AlignmentCalls.WithLabelValues("ok").Inc()
	return out.(*Result), nil
}

// callWithRetry performs the LM call with a single retry after retryDelay
// (§5 "max retries (1), retry delay (1.5s)"), each attempt bounded by the
// configured timeout.
func (c *AnthropicClient) callWithRetry(ctx context.Context, req Request) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := c.call(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *AnthropicClient) call(ctx context.Context, req Request) (*Result, error) {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := c.api.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("alignment: messages.new: %w", err)
	}

	return parseVerdict(msg.Content), nil
}

// parseVerdict extracts the "DRIFTED=... SEVERITY=... REASON=..." line the
// system prompt asks for. A malformed response degrades to not-drifted
// rather than erroring the whole call, since a parse failure isn't an
// upstream-availability problem.
func parseVerdict(blocks []anthropic.ContentBlockUnion) *Result {
	var text strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}

	line := text.String()
	result := &Result{Severity: model.SeverityLow}

	if strings.Contains(line, "DRIFTED=true") {
		result.Drifted = true
	}
	switch {
	case strings.Contains(line, "SEVERITY=HIGH"):
		result.Severity = model.SeverityHigh
	case strings.Contains(line, "SEVERITY=MEDIUM"):
		result.Severity = model.SeverityMedium
	}

	if idx := strings.Index(line, "REASON="); idx != -1 {
		result.Description = strings.TrimSpace(line[idx+len("REASON="):])
	} else {
		result.Description = strings.TrimSpace(line)
	}
	if result.Description == "" {
		result.Description = "no reason returned"
	}

	return result
}
