package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusAndPublicMessage(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "config",
			err:        &ConfigError{Fields: []string{"APIKey"}},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    MsgMisconfigured,
		},
		{
			name:       "validation",
			err:        &ValidationError{Reason: "messages missing"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    MsgInvalidFormat,
		},
		{
			name:       "local rate limit",
			err:        &RateLimitedError{ClientKey: "1.2.3.4"},
			wantStatus: http.StatusTooManyRequests,
			wantMsg:    MsgTooManyRequests,
		},
		{
			name:       "upstream throttled, wrapped",
			err:        fmt.Errorf("completion: %w", &UpstreamError{Model: "m", StatusCode: 429, Err: errors.New("slow down")}),
			wantStatus: http.StatusTooManyRequests,
			wantMsg:    MsgUpstreamThrottled,
		},
		{
			name:       "upstream generic",
			err:        &UpstreamError{Model: "m", StatusCode: 503, Err: errors.New("secret provider body")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    MsgFailed,
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    MsgFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
			if got := PublicMessage(tt.err); got != tt.wantMsg {
				t.Errorf("PublicMessage() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	kind := errors.New("kind")
	cause := errors.New("cause")
	err := fmt.Errorf("send: %w", &TransportError{Kind: kind, Cause: cause})

	if !errors.Is(err, kind) {
		t.Error("expected errors.Is to match the kind")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to match the cause")
	}
	if got := (&TransportError{Kind: kind}).Error(); got != "kind" {
		t.Errorf("Error() = %q, want %q", got, "kind")
	}
}
