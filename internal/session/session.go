// Package session is the client side of the chat: it holds the visible
// conversation, persists it, and sends it to the chat endpoint.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/portfolio-chatbot/internal/history"
	"github.com/AliZeynalov/portfolio-chatbot/internal/models"
)

const (
	// Greeting opens every new conversation.
	Greeting = "Hello! I'm CaffBot, your personal assistant. How can I help you today?"
	// FallbackReply is shown in place of an answer when a send fails.
	FallbackReply = "Failed to get response from CaffBot."
	// MaxEntries is how many messages are kept; older ones are dropped.
	MaxEntries = 100
	// MaxInputLength caps a single prompt, in characters.
	MaxInputLength = 2000
)

var (
	ErrEmptyPrompt    = errors.New("prompt is empty")
	ErrBusy           = errors.New("a message is already being sent")
	ErrNothingToClear = errors.New("no user messages to clear")
)

// Sender delivers a conversation and returns the assistant reply.
type Sender interface {
	SendChat(ctx context.Context, messages []models.Message) (string, error)
}

// Session is one persisted conversation.
type Session struct {
	store  history.Store
	sender Sender

	busy atomic.Bool

	mu        sync.Mutex
	entries   []history.Entry
	recovered bool
}

// Open loads the stored conversation, or starts a new one with the greeting.
// A stored value that cannot be decoded is discarded.
func Open(ctx context.Context, store history.Store, sender Sender) (*Session, error) {
	s := &Session{store: store, sender: sender}

	data, err := store.Get(ctx, history.Key)
	switch {
	case errors.Is(err, history.ErrNotFound):
		s.entries = greeting()
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("load history: %w", err)
	}

	entries, err := history.Decode(data)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err.Error(),
			"event": "history_corrupted",
		}).Warn("Discarding unreadable chat history")

		s.entries = greeting()
		s.recovered = true
		if err := store.Delete(ctx, history.Key); err != nil {
			return nil, fmt.Errorf("discard history: %w", err)
		}
		return s, nil
	}

	if len(entries) == 0 {
		s.entries = greeting()
		return s, nil
	}
	s.entries = entries
	return s, nil
}

// Recovered reports whether Open had to discard a corrupted history.
func (s *Session) Recovered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recovered
}

// Messages returns a copy of the conversation, oldest first.
func (s *Session) Messages() []history.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]history.Entry(nil), s.entries...)
}

// Search returns the messages whose content contains q, ignoring case.
// An empty query matches everything.
func (s *Session) Search(q string) []history.Entry {
	q = strings.ToLower(strings.TrimSpace(q))

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]history.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if q == "" || strings.Contains(strings.ToLower(e.Content), q) {
			out = append(out, e)
		}
	}
	return out
}

// Send appends text as a user message, sends the whole conversation and
// appends the reply. On failure the user message stays, FallbackReply is
// appended and the sender's error is returned.
func (s *Session) Send(ctx context.Context, text string) (history.Entry, error) {
	text = clip(strings.TrimSpace(text), MaxInputLength)
	if text == "" {
		return history.Entry{}, ErrEmptyPrompt
	}
	if !s.busy.CompareAndSwap(false, true) {
		return history.Entry{}, ErrBusy
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	s.append(history.NewEntry(models.RoleUser, text))
	conversation := make([]models.Message, 0, len(s.entries))
	for _, e := range s.entries {
		conversation = append(conversation, models.Message{Role: e.Role, Content: e.Content})
	}
	s.persist(ctx)
	s.mu.Unlock()

	reply, sendErr := s.sender.SendChat(ctx, conversation)

	s.mu.Lock()
	defer s.mu.Unlock()

	if sendErr != nil {
		log.WithFields(log.Fields{
			"error": sendErr.Error(),
			"event": "send_failed",
		}).Warn("Failed to get response from chatbot")

		s.append(history.NewEntry(models.RoleAssistant, FallbackReply))
		s.persist(ctx)
		return history.Entry{}, sendErr
	}

	entry := history.NewEntry(models.RoleAssistant, reply)
	s.append(entry)
	s.persist(ctx)
	return entry, nil
}

// Clear resets the conversation to the greeting and removes the stored copy.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hasUser := false
	for _, e := range s.entries {
		if e.Role == models.RoleUser {
			hasUser = true
			break
		}
	}
	if !hasUser {
		return ErrNothingToClear
	}

	s.entries = greeting()
	if err := s.store.Delete(ctx, history.Key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// append adds e and keeps the newest MaxEntries. Callers hold mu.
func (s *Session) append(e history.Entry) {
	s.entries = append(s.entries, e)
	if over := len(s.entries) - MaxEntries; over > 0 {
		s.entries = append([]history.Entry(nil), s.entries[over:]...)
	}
}

// persist saves the conversation. A failed save is logged and the session
// keeps working from memory. Callers hold mu.
func (s *Session) persist(ctx context.Context) {
	data, err := history.Encode(s.entries)
	if err == nil {
		err = s.store.Put(ctx, history.Key, data)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"error": err.Error(),
			"event": "history_save_failed",
		}).Warn("Failed to save chat history")
	}
}

func greeting() []history.Entry {
	return []history.Entry{history.NewEntry(models.RoleAssistant, Greeting)}
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
