// Package mockprovider is an OpenAI-compatible chat completions server used
// for local runs and tests. The requested model name selects the behavior:
//
//	throttle, fail-429   answer 429
//	fail-<code>          answer with that status code (400-599)
//	timeout              hang until the client gives up
//	empty                answer 200 without choices
//	anything else        answer 200 with DefaultReply
package mockprovider

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// DefaultReply is the content of every successful mock completion.
const DefaultReply = "Hello! I'm a mock LLM response. How can I help you today?"

// Server records calls per model so tests can assert on retry behavior.
type Server struct {
	mu          sync.Mutex
	calls       map[string]int
	order       []string
	lastHeaders http.Header

	// Delay is applied before every answer.
	Delay time.Duration

	engine *gin.Engine
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// New builds a mock server with its routes registered.
func New() *Server {
	s := &Server{calls: make(map[string]int)}

	r := gin.New()
	r.Use(gin.Recovery())

	// Chat completions endpoint (OpenAI-compatible)
	r.POST("/v1/chat/completions", s.handleChatCompletion)
	r.POST("/chat/completions", s.handleChatCompletion)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	s.engine = r
	return s
}

// Handler returns the HTTP handler serving the mock API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Calls returns how many completion requests named model.
func (s *Server) Calls(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[model]
}

// Order returns the requested models in arrival order.
func (s *Server) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// LastHeader returns a header of the most recent completion request.
func (s *Server) LastHeader(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastHeaders == nil {
		return ""
	}
	return s.lastHeaders.Get(name)
}

func (s *Server) handleChatCompletion(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"message": "Invalid request body",
				"type":    "invalid_request_error",
			},
		})
		return
	}

	s.mu.Lock()
	s.calls[req.Model]++
	s.order = append(s.order, req.Model)
	s.lastHeaders = c.Request.Header.Clone()
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"model":    req.Model,
		"messages": len(req.Messages),
	}).Debug("Received request")

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-c.Request.Context().Done():
			return
		}
	}

	switch {
	case req.Model == "throttle":
		handleFailure(c, "429")
	case strings.HasPrefix(req.Model, "fail-"):
		handleFailure(c, strings.TrimPrefix(req.Model, "fail-"))
	case req.Model == "timeout":
		// Hang until the caller cancels.
		<-c.Request.Context().Done()
	case req.Model == "empty":
		c.JSON(http.StatusOK, completion(req.Model, nil))
	default:
		c.JSON(http.StatusOK, completion(req.Model, []gin.H{
			{
				"index": 0,
				"message": gin.H{
					"role":    "assistant",
					"content": DefaultReply,
				},
				"finish_reason": "stop",
			},
		}))
	}
}

func completion(model string, choices []gin.H) gin.H {
	if choices == nil {
		choices = []gin.H{}
	}
	return gin.H{
		"id":      fmt.Sprintf("mock-%d", rand.Intn(100000)),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": choices,
		"usage": gin.H{
			"prompt_tokens":     10,
			"completion_tokens": 15,
			"total_tokens":      25,
		},
	}
}

func handleFailure(c *gin.Context, failType string) {
	log.Debugf("Simulating failure: %s", failType)

	switch failType {
	case "429":
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"message": "Rate limit exceeded. Please retry after some time.",
				"type":    "rate_limit_error",
				"code":    "rate_limit_exceeded",
			},
		})
	case "500":
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"message": "Internal server error",
				"type":    "server_error",
				"code":    "internal_error",
			},
		})
	case "503":
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"message": "Service temporarily unavailable",
				"type":    "server_error",
				"code":    "service_unavailable",
			},
		})
	default:
		// Try to parse as status code
		code, err := strconv.Atoi(failType)
		if err == nil && code >= 400 && code < 600 {
			c.JSON(code, gin.H{
				"error": gin.H{
					"message": fmt.Sprintf("Simulated error %d", code),
					"type":    "simulated_error",
					"code":    fmt.Sprintf("error_%d", code),
				},
			})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"message": "Unknown failure type",
					"type":    "server_error",
				},
			})
		}
	}
}
