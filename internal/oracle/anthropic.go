package oracle

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicTransport backs the oracle with the managed messages SDK. Same
// retry semantics as the chat-completions transport: the SDK's own retries
// are off, the iteration protocol decides.
type AnthropicTransport struct {
	client anthropic.Client
}

// NewAnthropicTransport creates the managed-SDK transport.
func NewAnthropicTransport(apiKey string, extra ...option.RequestOption) *AnthropicTransport {
	opts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, extra...)
	return &AnthropicTransport{client: anthropic.NewClient(opts...)}
}

// Name returns the transport identifier.
func (t *AnthropicTransport) Name() string { return "Anthropic" }

// Complete sends one request to one model.
func (t *AnthropicTransport) Complete(ctx context.Context, req Request) (*Response, error) {
	system := req.System
	if req.JSONResponse {
		// No native JSON mode; the instruction plus the parser's repair
		// pass cover it.
		system += "\nRespond with a single JSON object and no other text."
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := t.client.Messages.New(ctx, params)
	if err != nil {
		return nil, t.classify(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	return &Response{
		Text: b.String(),
		Usage: Usage{
			Prompt:     msg.Usage.InputTokens,
			Completion: msg.Usage.OutputTokens,
			Total:      msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
	}, nil
}

func (t *AnthropicTransport) classify(err error) error {
	var apierr *anthropic.Error
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

var _ Transport = (*AnthropicTransport)(nil)
