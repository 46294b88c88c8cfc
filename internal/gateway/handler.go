package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/portfolio-chatbot/internal/errs"
	"github.com/AliZeynalov/portfolio-chatbot/internal/models"
	"github.com/AliZeynalov/portfolio-chatbot/internal/normalizer"
	"github.com/AliZeynalov/portfolio-chatbot/internal/orchestrator"
)

// maxBodyBytes caps the chat request body.
const maxBodyBytes = 1 << 20

// Completer is the part of the orchestrator the handler needs.
type Completer interface {
	Admit(clientKey string) error
	Complete(ctx context.Context, messages []models.Message) (*orchestrator.Result, error)
}

// Handler handles HTTP requests for the gateway
type Handler struct {
	completer Completer
}

// NewHandler creates a new Handler
func NewHandler(completer Completer) *Handler {
	return &Handler{completer: completer}
}

// Chat handles POST /api/bot
func (h *Handler) Chat(c *gin.Context) {
	requestID := c.GetString(requestIDKey)
	start := time.Now()

	clientKey := ClientKey(c)
	if err := h.completer.Admit(clientKey); err != nil {
		h.fail(c, requestID, "admission_rejected", err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, requestID, "read_error", &errs.ValidationError{Reason: "unreadable body"})
		return
	}

	messages := normalizer.FromJSON(body)
	if len(messages) == 0 {
		h.fail(c, requestID, "validation_failed", &errs.ValidationError{Reason: "no messages"})
		return
	}

	log.WithFields(log.Fields{
		"request_id": requestID,
		"messages":   len(messages),
		"event":      "validated",
	}).Debug("Request validated")

	result, err := h.completer.Complete(c.Request.Context(), messages)
	if err != nil {
		h.fail(c, requestID, "provider_error", err)
		return
	}

	log.WithFields(log.Fields{
		"request_id": requestID,
		"model":      result.Model,
		"attempts":   len(result.Attempts),
		"latency_ms": time.Since(start).Milliseconds(),
		"event":      "success",
	}).Info("Request successful")

	c.JSON(http.StatusOK, models.Response{Messages: result.Reply})
}

// fail writes the safe error body for err and logs the internal detail.
func (h *Handler) fail(c *gin.Context, requestID, event string, err error) {
	status := errs.HTTPStatus(err)

	entry := log.WithFields(log.Fields{
		"request_id": requestID,
		"status":     status,
		"error":      err.Error(),
		"event":      event,
	})
	var cfgErr *errs.ConfigError
	switch {
	case errors.As(err, &cfgErr), status >= http.StatusInternalServerError:
		entry.Error("Request failed")
	default:
		entry.Warn("Request rejected")
	}

	c.JSON(status, models.ErrorResponse{Error: errs.PublicMessage(err)})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ClientKey identifies the caller for rate limiting: the first
// X-Forwarded-For entry, then the connection address, then "anon".
func ClientKey(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "anon"
}
