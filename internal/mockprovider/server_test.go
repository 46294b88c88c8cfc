package mockprovider

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func complete(s *Server, model string) *httptest.ResponseRecorder {
	body := `{"model":"` + model + `","messages":[{"role":"user","content":"Hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Title", "Portfolio Chatbot")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestModelSelectsBehavior(t *testing.T) {
	tests := []struct {
		model  string
		status int
		reply  bool
	}{
		{model: "primary", status: http.StatusOK, reply: true},
		{model: "throttle", status: http.StatusTooManyRequests},
		{model: "fail-429", status: http.StatusTooManyRequests},
		{model: "fail-503", status: http.StatusServiceUnavailable},
		{model: "fail-418", status: http.StatusTeapot},
		{model: "fail-nonsense", status: http.StatusInternalServerError},
		{model: "empty", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			w := complete(New(), tt.model)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if got := strings.Contains(w.Body.String(), DefaultReply); got != tt.reply {
				t.Errorf("reply present = %v, want %v: %s", got, tt.reply, w.Body.String())
			}
		})
	}
}

func TestRecordsCalls(t *testing.T) {
	s := New()
	complete(s, "throttle")
	complete(s, "throttle")
	complete(s, "backup")

	if n := s.Calls("throttle"); n != 2 {
		t.Errorf("Calls(throttle) = %d, want 2", n)
	}
	if got := s.Order(); len(got) != 3 || got[2] != "backup" {
		t.Errorf("Order() = %v", got)
	}
	if got := s.LastHeader("X-Title"); got != "Portfolio Chatbot" {
		t.Errorf("LastHeader(X-Title) = %q", got)
	}
}

func TestRejectsMalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	New().Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
