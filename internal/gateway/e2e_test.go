package gateway_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AliZeynalov/portfolio-chatbot/internal/client"
	"github.com/AliZeynalov/portfolio-chatbot/internal/config"
	"github.com/AliZeynalov/portfolio-chatbot/internal/gateway"
	"github.com/AliZeynalov/portfolio-chatbot/internal/history"
	"github.com/AliZeynalov/portfolio-chatbot/internal/mockprovider"
	"github.com/AliZeynalov/portfolio-chatbot/internal/models"
	"github.com/AliZeynalov/portfolio-chatbot/internal/orchestrator"
	"github.com/AliZeynalov/portfolio-chatbot/internal/provider"
	"github.com/AliZeynalov/portfolio-chatbot/internal/session"
)

// stack starts mock upstream and gateway servers and returns the chat URL.
func stack(t *testing.T, primary, fallback string) (string, *mockprovider.Server) {
	t.Helper()

	mock := mockprovider.New()
	upstream := httptest.NewServer(mock.Handler())
	t.Cleanup(upstream.Close)

	pcfg := config.ProviderConfig{
		APIKey:        "test-key",
		BaseURL:       upstream.URL + "/v1",
		Model:         primary,
		FallbackModel: fallback,
		Title:         "Portfolio Chatbot",
		Temperature:   0.6,
		Timeout:       2 * time.Second,
	}
	llm, err := provider.NewOpenAI(pcfg)
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}

	orch := orchestrator.New(llm, nil, orchestrator.Settings{
		APIKey:        pcfg.APIKey,
		BaseURL:       pcfg.BaseURL,
		Model:         primary,
		FallbackModel: fallback,
		SystemPrompt:  config.DefaultSystemPrompt,
		BaseBackoff:   time.Millisecond,
		Deadline:      5 * time.Second,
	})
	srv := httptest.NewServer(gateway.NewRouter(gateway.NewHandler(orch), ""))
	t.Cleanup(srv.Close)

	return srv.URL + gateway.ChatPath, mock
}

func TestSessionThroughGateway(t *testing.T) {
	endpoint, mock := stack(t, "fail-503", "backup")
	ctx := context.Background()

	store, err := history.NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	s, err := session.Open(ctx, store, client.New(endpoint))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	reply, err := s.Send(ctx, "What do you build?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Content != mockprovider.DefaultReply {
		t.Errorf("reply = %q", reply.Content)
	}

	if got := mock.Order(); len(got) != 2 || got[0] != "fail-503" || got[1] != "backup" {
		t.Errorf("upstream call order = %v, want [fail-503 backup]", got)
	}
}

func TestThrottledUpstreamReachesClient(t *testing.T) {
	endpoint, mock := stack(t, "throttle", "")
	c := client.New(endpoint)

	if _, err := c.SendChat(context.Background(), nil); !errors.Is(err, client.ErrUnavailable) {
		t.Fatalf("empty conversation error = %v, want ErrUnavailable", err)
	}
	if n := mock.Calls("throttle"); n != 0 {
		t.Fatalf("upstream called %d times for an invalid request", n)
	}

	_, err := c.SendChat(context.Background(), []models.Message{{Role: models.RoleUser, Content: "Hi"}})
	if !errors.Is(err, client.ErrRateLimited) {
		t.Fatalf("SendChat() error = %v, want ErrRateLimited", err)
	}
	if n := mock.Calls("throttle"); n != orchestrator.DefaultMaxAttempts {
		t.Errorf("upstream calls = %d, want %d", n, orchestrator.DefaultMaxAttempts)
	}
}
