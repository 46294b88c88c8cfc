package models

import "time"

// Role values accepted in a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// MaxContentLength is the per-message content cap, in characters.
const MaxContentLength = 8000

// Message represents a single chat message
type Message struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"`
}

// Request is the body the chat endpoint accepts. Messages is left untyped so
// that arbitrary client payloads reach the normalizer intact.
type Request struct {
	Messages any `json:"messages"`
}

// Response is the success body of the chat endpoint. The field is named
// "messages" for compatibility with existing widgets but holds one reply.
type Response struct {
	Messages string `json:"messages"`
}

// ErrorResponse is the body of every non-2xx chat endpoint response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Attempt outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeThrottled = "throttled"
	OutcomeError     = "error"
)

// Attempt represents a single attempt to fulfill a request
type Attempt struct {
	Model         string        `json:"model"`
	AttemptNumber int           `json:"attempt_number"`
	Outcome       string        `json:"outcome"` // "success", "throttled", "error"
	StartedAt     time.Time     `json:"started_at"`
	Latency       time.Duration `json:"latency"`
}
