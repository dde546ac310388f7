package oracle

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAITransport backs the oracle with the chat-completions API. SDK
// retries are disabled so the iteration protocol owns retry semantics.
type OpenAITransport struct {
	client openai.Client
}

// NewOpenAITransport creates the chat-completions transport.
func NewOpenAITransport(apiKey string, extra ...option.RequestOption) *OpenAITransport {
	opts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, extra...)
	return &OpenAITransport{client: openai.NewClient(opts...)}
}

// Name returns the transport identifier.
func (t *OpenAITransport) Name() string { return "OpenAI" }

// Complete sends one request to one model.
func (t *OpenAITransport) Complete(ctx context.Context, req Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSONResponse {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, t.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &TransportError{Message: "empty completion"}
	}

	return &Response{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (t *OpenAITransport) classify(err error) error {
	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		return &TransportError{Message: err.Error()}
	}
	te := &TransportError{
		Status:      apierr.StatusCode,
		RateLimited: apierr.StatusCode == http.StatusTooManyRequests,
		Message:     apierr.Error(),
	}
	if te.RateLimited && apierr.Response != nil {
		te.RetryAfter = parseRetryAfter(apierr.Response.Header.Get("Retry-After"))
	}
	return te
}

// parseRetryAfter reads a Retry-After header as either delay seconds or an
// HTTP date. Returns 0 when the header is absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

var _ Transport = (*OpenAITransport)(nil)
