package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/AliZeynalov/portfolio-chatbot/internal/client"
	"github.com/AliZeynalov/portfolio-chatbot/internal/errs"
	"github.com/AliZeynalov/portfolio-chatbot/internal/history"
	"github.com/AliZeynalov/portfolio-chatbot/internal/models"
)

type senderFunc func(ctx context.Context, messages []models.Message) (string, error)

func (f senderFunc) SendChat(ctx context.Context, messages []models.Message) (string, error) {
	return f(ctx, messages)
}

func echo() senderFunc {
	return func(_ context.Context, msgs []models.Message) (string, error) {
		return "re: " + msgs[len(msgs)-1].Content, nil
	}
}

func newStore(t *testing.T) history.Store {
	t.Helper()
	store, err := history.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return store
}

func open(t *testing.T, store history.Store, sender Sender) *Session {
	t.Helper()
	s, err := Open(context.Background(), store, sender)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestOpenStartsWithGreeting(t *testing.T) {
	s := open(t, newStore(t), echo())

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != models.RoleAssistant || msgs[0].Content != Greeting {
		t.Fatalf("Messages() = %+v, want greeting only", msgs)
	}
	if msgs[0].ID == "" {
		t.Error("greeting has no ID")
	}
	if s.Recovered() {
		t.Error("Recovered() = true for a fresh store")
	}
}

func TestOpenRecoversFromCorruptHistory(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	if err := store.Put(ctx, history.Key, []byte(`{broken`)); err != nil {
		t.Fatal(err)
	}

	s := open(t, store, echo())

	if !s.Recovered() {
		t.Error("Recovered() = false")
	}
	if msgs := s.Messages(); len(msgs) != 1 || msgs[0].Content != Greeting {
		t.Errorf("Messages() = %+v, want greeting", msgs)
	}
	if _, err := store.Get(ctx, history.Key); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("corrupted value still stored: %v", err)
	}
}

func TestOpenTreatsEmptyHistoryAsNew(t *testing.T) {
	store := newStore(t)
	if err := store.Put(context.Background(), history.Key, []byte(`[]`)); err != nil {
		t.Fatal(err)
	}

	s := open(t, store, echo())

	if msgs := s.Messages(); len(msgs) != 1 || msgs[0].Content != Greeting {
		t.Fatalf("Messages() = %+v, want greeting", msgs)
	}
	if s.Recovered() {
		t.Error("Recovered() = true for an empty history")
	}
	if _, err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestSendRoundTripsThroughStore(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	var sent []models.Message
	s := open(t, store, senderFunc(func(_ context.Context, msgs []models.Message) (string, error) {
		sent = msgs
		return "Hi there", nil
	}))

	reply, err := s.Send(ctx, "  Hello  ")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Content != "Hi there" || reply.Role != models.RoleAssistant {
		t.Errorf("reply = %+v", reply)
	}

	want := []models.Message{
		{Role: models.RoleAssistant, Content: Greeting},
		{Role: models.RoleUser, Content: "Hello"},
	}
	if len(sent) != len(want) {
		t.Fatalf("sent %d messages, want %d", len(sent), len(want))
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("sent[%d] = %+v, want %+v", i, sent[i], want[i])
		}
	}

	before := s.Messages()
	reopened := open(t, store, echo())
	after := reopened.Messages()
	if len(after) != 3 {
		t.Fatalf("reopened with %d messages, want 3", len(after))
	}
	for i := range before {
		if after[i].ID != before[i].ID || after[i].Role != before[i].Role ||
			after[i].Content != before[i].Content || !after[i].CreatedAt.Equal(before[i].CreatedAt) {
			t.Errorf("entry %d = %+v, want %+v", i, after[i], before[i])
		}
	}
}

func TestSendRejectsEmptyPrompt(t *testing.T) {
	s := open(t, newStore(t), senderFunc(func(context.Context, []models.Message) (string, error) {
		t.Error("sender called for an empty prompt")
		return "", nil
	}))

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := s.Send(context.Background(), text); !errors.Is(err, ErrEmptyPrompt) {
			t.Errorf("Send(%q) error = %v, want ErrEmptyPrompt", text, err)
		}
	}
	if n := len(s.Messages()); n != 1 {
		t.Errorf("conversation grew to %d", n)
	}
}

func TestSendClipsLongInput(t *testing.T) {
	s := open(t, newStore(t), echo())

	if _, err := s.Send(context.Background(), strings.Repeat("é", MaxInputLength+50)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	user := s.Messages()[1]
	if got := len([]rune(user.Content)); got != MaxInputLength {
		t.Errorf("user message has %d characters, want %d", got, MaxInputLength)
	}
}

func TestSendFailureKeepsUserMessage(t *testing.T) {
	failure := &errs.TransportError{Kind: client.ErrRateLimited}
	s := open(t, newStore(t), senderFunc(func(context.Context, []models.Message) (string, error) {
		return "", failure
	}))

	_, err := s.Send(context.Background(), "Hi")
	if !errors.Is(err, client.ErrRateLimited) {
		t.Fatalf("Send() error = %v, want ErrRateLimited", err)
	}

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[1].Role != models.RoleUser || msgs[1].Content != "Hi" {
		t.Errorf("user message = %+v", msgs[1])
	}
	if msgs[2].Role != models.RoleAssistant || msgs[2].Content != FallbackReply {
		t.Errorf("fallback message = %+v", msgs[2])
	}
}

func TestSendWhileBusy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	s := open(t, newStore(t), senderFunc(func(context.Context, []models.Message) (string, error) {
		close(entered)
		<-release
		return "done", nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "first")
		done <- err
	}()
	<-entered

	if _, err := s.Send(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Send() error = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if n := len(s.Messages()); n != 3 {
		t.Errorf("got %d messages, want 3", n)
	}
}

func TestConversationIsCapped(t *testing.T) {
	s := open(t, newStore(t), echo())

	for i := 0; i < 60; i++ {
		if _, err := s.Send(context.Background(), fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("Send(%d) error = %v", i, err)
		}
	}

	msgs := s.Messages()
	if len(msgs) != MaxEntries {
		t.Fatalf("got %d messages, want %d", len(msgs), MaxEntries)
	}
	if last := msgs[len(msgs)-1]; last.Content != "re: q59" {
		t.Errorf("newest message = %q", last.Content)
	}
	if first := msgs[0]; first.Content != "q10" {
		t.Errorf("oldest kept message = %q, want q10", first.Content)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	s := open(t, store, echo())

	if err := s.Clear(ctx); !errors.Is(err, ErrNothingToClear) {
		t.Fatalf("Clear() on greeting error = %v, want ErrNothingToClear", err)
	}

	if _, err := s.Send(ctx, "Hi"); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if msgs := s.Messages(); len(msgs) != 1 || msgs[0].Content != Greeting {
		t.Errorf("Messages() after Clear = %+v", msgs)
	}
	if _, err := store.Get(ctx, history.Key); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("history still stored after Clear: %v", err)
	}
}

func TestSearch(t *testing.T) {
	s := open(t, newStore(t), echo())
	if _, err := s.Send(context.Background(), "Tell me about Kubernetes"); err != nil {
		t.Fatal(err)
	}

	if got := s.Search("kubernetes"); len(got) != 2 {
		t.Errorf("Search(kubernetes) = %d results, want 2", len(got))
	}
	if got := s.Search("CAFFBOT"); len(got) != 1 || got[0].Content != Greeting {
		t.Errorf("Search(CAFFBOT) = %+v", got)
	}
	if got := s.Search(""); len(got) != 3 {
		t.Errorf("Search(\"\") = %d results, want 3", len(got))
	}
	if got := s.Search("nothing matches"); len(got) != 0 {
		t.Errorf("Search(nothing matches) = %+v", got)
	}
}
