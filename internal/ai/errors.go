package ai

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// ErrEmptyResponse is returned by a backend that answered without any text.
var ErrEmptyResponse = errors.New("empty completion response")

// Failure categories reported in logs and metrics.
const (
	FailureAuth      = "auth"
	FailureRateLimit = "rate_limit"
	FailureTimeout   = "timeout"
	FailureServer    = "server"
	FailureEmpty     = "empty_response"
	FailureUnknown   = "unknown"
)

var statusPattern = regexp.MustCompile(`\b(?:Error|status(?: code)?:?)\s+(\d{3})\b`)

// Classify maps a completion error to a failure category. Authentication
// failures are recognised by status code or by key and token wording in the
// error text.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrEmptyResponse) {
		return FailureEmpty
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if strings.EqualFold(apiErr.Code, "invalid_api_key") {
			return FailureAuth
		}
		return classifyStatus(apiErr.StatusCode)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return classifyStatus(genaiErr.Code)
	}
	var genaiErrPtr *genai.APIError
	if errors.As(err, &genaiErrPtr) {
		return classifyStatus(genaiErrPtr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	msg := err.Error()
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		if kind := classifyStatus(code); kind != FailureUnknown {
			return kind
		}
	}
	if looksLikeAuth(msg) {
		return FailureAuth
	}
	return FailureUnknown
}

func classifyStatus(code int) string {
	switch {
	case code == 401 || code == 403:
		return FailureAuth
	case code == 429:
		return FailureRateLimit
	case code == 408 || code == 504:
		return FailureTimeout
	case code >= 500:
		return FailureServer
	default:
		return FailureUnknown
	}
}

func looksLikeAuth(msg string) bool {
	lower := strings.ToLower(msg)
	for _, hint := range []string{"api key", "api_key", "apikey", "token", "unauthorized", "unauthenticated", "permission denied"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
