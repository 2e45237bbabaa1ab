package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "empty", err: fmt.Errorf("wrap: %w", ErrEmptyResponse), want: FailureEmpty},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: FailureTimeout},
		{name: "openai 401", err: &openai.Error{StatusCode: 401, Message: "bad key"}, want: FailureAuth},
		{name: "openai invalid key code", err: &openai.Error{StatusCode: 400, Code: "invalid_api_key"}, want: FailureAuth},
		{name: "openai 429", err: &openai.Error{StatusCode: 429}, want: FailureRateLimit},
		{name: "openai 503", err: &openai.Error{StatusCode: 503}, want: FailureServer},
		{name: "openai 400", err: &openai.Error{StatusCode: 400, Message: "bad request"}, want: FailureUnknown},
		{name: "genai 403", err: genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}, want: FailureAuth},
		{name: "genai 500", err: fmt.Errorf("generate: %w", genai.APIError{Code: 500}), want: FailureServer},
		{name: "status in text", err: errors.New(`POST "https://api.groq.com/openai/v1/chat/completions": 429 Too Many Requests status 429`), want: FailureRateLimit},
		{name: "key wording", err: errors.New("missing API key"), want: FailureAuth},
		{name: "token wording", err: errors.New("token expired"), want: FailureAuth},
		{name: "other", err: errors.New("connection reset by peer"), want: FailureUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
