// Package orchestrator resolves a conversation into a single assistant reply,
// absorbing upstream throttling and outages.
//
// Each invocation walks the candidate models in priority order. A throttled
// attempt is retried on the same model after an exponential backoff; any
// other failure moves on to the next model at once. The first success wins.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/portfolio-chatbot/internal/config"
	"github.com/AliZeynalov/portfolio-chatbot/internal/errs"
	"github.com/AliZeynalov/portfolio-chatbot/internal/models"
	"github.com/AliZeynalov/portfolio-chatbot/internal/provider"
	"github.com/AliZeynalov/portfolio-chatbot/internal/ratelimit"
)

// Defaults used when Settings leaves a field at zero.
const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 400 * time.Millisecond

	// maxBackoff caps a single wait however many attempts are configured.
	maxBackoff = 30 * time.Second
)

// Settings holds what the orchestrator needs from the configuration.
type Settings struct {
	APIKey        string
	BaseURL       string
	Model         string
	FallbackModel string
	SystemPrompt  string
	MaxAttempts   int
	BaseBackoff   time.Duration
	// Deadline bounds a whole Complete call, backoff waits included.
	// Zero means no deadline beyond the caller's context.
	Deadline time.Duration
}

// SettingsFrom extracts orchestrator settings from the gateway config.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		APIKey:        cfg.Provider.APIKey,
		BaseURL:       cfg.Provider.BaseURL,
		Model:         cfg.Provider.Model,
		FallbackModel: cfg.Provider.FallbackModel,
		SystemPrompt:  cfg.Chat.SystemPrompt,
		MaxAttempts:   cfg.Chat.MaxAttempts,
		BaseBackoff:   cfg.Chat.BaseBackoff,
		Deadline:      cfg.Chat.RequestDeadline,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Result is a successful completion.
type Result struct {
	Reply    string
	Model    string
	Attempts []models.Attempt
}

// Orchestrator owns the retry and fallback state machine.
type Orchestrator struct {
	provider provider.Provider
	limiter  ratelimit.Limiter
	settings Settings
	sleep    SleepFunc
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// New creates an orchestrator. A nil limiter admits every client.
func New(p provider.Provider, limiter ratelimit.Limiter, settings Settings, opts ...Option) *Orchestrator {
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = DefaultMaxAttempts
	}
	if settings.BaseBackoff <= 0 {
		settings.BaseBackoff = DefaultBaseBackoff
	}
	o := &Orchestrator{
		provider: p,
		limiter:  limiter,
		settings: settings,
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Admit runs the checks that precede any model call: required configuration
// first, then the client's rate limit.
func (o *Orchestrator) Admit(clientKey string) error {
	if err := o.checkConfig(); err != nil {
		return err
	}
	if o.limiter != nil && o.limiter.IsLimited(clientKey) {
		return &errs.RateLimitedError{ClientKey: clientKey}
	}
	return nil
}

func (o *Orchestrator) checkConfig() error {
	var missing []string
	if o.settings.APIKey == "" {
		missing = append(missing, "Provider.APIKey")
	}
	if o.settings.BaseURL == "" {
		missing = append(missing, "Provider.BaseURL")
	}
	if o.settings.Model == "" {
		missing = append(missing, "Provider.Model")
	}
	if len(missing) > 0 {
		return &errs.ConfigError{Fields: missing}
	}
	return nil
}

// Candidates returns the models to try, primary first.
func (o *Orchestrator) Candidates() []string {
	candidates := []string{o.settings.Model}
	if o.settings.FallbackModel != "" {
		candidates = append(candidates, o.settings.FallbackModel)
	}
	return candidates
}

// Complete asks the provider for a reply to messages, which must already be
// normalized. The system prompt is prepended here and is never taken from
// the client. When every candidate fails, the last *errs.UpstreamError is
// returned; it is throttled if the final failure was a 429.
func (o *Orchestrator) Complete(ctx context.Context, messages []models.Message) (*Result, error) {
	if err := o.checkConfig(); err != nil {
		return nil, err
	}

	if o.settings.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.settings.Deadline)
		defer cancel()
	}

	conversation := make([]models.Message, 0, len(messages)+1)
	conversation = append(conversation, models.Message{Role: models.RoleSystem, Content: o.settings.SystemPrompt})
	conversation = append(conversation, messages...)

	var (
		attempts []models.Attempt
		lastErr  *errs.UpstreamError
	)

candidates:
	for _, model := range o.Candidates() {
		schedule := o.newSchedule()

		for attempt := 0; attempt < o.settings.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				if lastErr == nil {
					lastErr = &errs.UpstreamError{Model: model, Attempt: attempt + 1, Err: err}
				}
				break candidates
			}

			started := o.now()
			reply, err := o.provider.Complete(ctx, model, conversation)
			record := models.Attempt{
				Model:         model,
				AttemptNumber: attempt + 1,
				StartedAt:     started,
				Latency:       o.now().Sub(started),
			}

			if err == nil {
				record.Outcome = models.OutcomeSuccess
				attempts = append(attempts, record)
				return &Result{Reply: reply, Model: model, Attempts: attempts}, nil
			}

			lastErr = asUpstream(model, attempt+1, err)
			if !lastErr.Throttled() {
				record.Outcome = models.OutcomeError
				attempts = append(attempts, record)
				o.logAttempt(record, lastErr)
				continue candidates
			}

			record.Outcome = models.OutcomeThrottled
			attempts = append(attempts, record)
			o.logAttempt(record, lastErr)

			if attempt == o.settings.MaxAttempts-1 {
				break
			}
			if err := o.sleep(ctx, schedule.NextBackOff()); err != nil {
				break candidates
			}
		}
	}

	if lastErr == nil {
		lastErr = &errs.UpstreamError{Err: errors.New("no candidate model")}
	}

	log.WithFields(log.Fields{
		"status":   errs.HTTPStatus(lastErr),
		"model":    lastErr.Model,
		"attempts": len(attempts),
		"event":    "completion_exhausted",
	}).Error(errs.PublicMessage(lastErr))

	return nil, lastErr
}

// newSchedule returns a deterministic exponential schedule:
// BaseBackoff, 2x, 4x, ...
func (o *Orchestrator) newSchedule() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.settings.BaseBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoff
	if b.InitialInterval > maxBackoff {
		b.InitialInterval = maxBackoff
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (o *Orchestrator) logAttempt(a models.Attempt, err *errs.UpstreamError) {
	log.WithFields(log.Fields{
		"model":      a.Model,
		"attempt":    a.AttemptNumber,
		"outcome":    a.Outcome,
		"status":     err.StatusCode,
		"latency_ms": a.Latency.Milliseconds(),
		"event":      "attempt_failed",
	}).Warn("Completion attempt failed")
}

func asUpstream(model string, attempt int, err error) *errs.UpstreamError {
	var upstream *errs.UpstreamError
	if errors.As(err, &upstream) {
		classified := *upstream
		classified.Model = model
		classified.Attempt = attempt
		return &classified
	}
	return &errs.UpstreamError{Model: model, Attempt: attempt, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
