// Package provider talks to the upstream chat-completion service.
//
// The orchestrator only depends on the Provider interface, which keeps the
// OpenAI SDK out of the retry logic and lets tests substitute a mock.
// Implementations report failures as *errs.UpstreamError so throttling can
// be told apart from other errors without inspecting response bodies.
package provider

import (
	"context"

	"github.com/AliZeynalov/portfolio-chatbot/internal/models"
)

//go:generate mockgen -source=provider.go -destination=mocks/mock_provider.go -package=mocks

// Provider produces one assistant reply for a conversation.
type Provider interface {
	Complete(ctx context.Context, model string, messages []models.Message) (string, error)
}

// Func adapts an ordinary function to the Provider interface.
type Func func(ctx context.Context, model string, messages []models.Message) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, model string, messages []models.Message) (string, error) {
	return f(ctx, model, messages)
}
