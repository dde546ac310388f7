package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stepwise-run/stepwise/internal/devlog"
)

// Request is one completion request against one model.
type Request struct {
	Model        string
	System       string
	User         string
	JSONResponse bool
	MaxTokens    int
}

// Response is the successful result of a completion request.
type Response struct {
	Text  string
	Usage Usage
}

// TransportError is a typed transport failure. RateLimited failures are
// retried against the same model; everything else moves the protocol to
// the next model immediately.
type TransportError struct {
	Status      int
	RateLimited bool
	RetryAfter  time.Duration
	Message     string
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transport error (status %d): %s", e.Status, e.Message)
	}
	return "transport error: " + e.Message
}

// Transport sends a single request to a single model. Both backend
// strategies (chat-completions over HTTP, managed SDK) implement this;
// the retry/fallback protocol lives above it.
type Transport interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ModelLists is the ordered model configuration per capability. Supplied
// by configuration; model identifiers are never hardcoded.
type ModelLists struct {
	Action     []string
	Verify     []string
	Synthesize []string
}

// Options tunes the model-iteration protocol.
type Options struct {
	// MaxRetries is the number of extra attempts per model after a
	// rate-limit response (total attempts per model = MaxRetries+1).
	MaxRetries int
	// InitialBackoff seeds the exponential rate-limit backoff, used when
	// the server gives no retry-after hint.
	InitialBackoff time.Duration
	// MaxTokens bounds completion output size.
	MaxTokens int
	// Usage, when set, receives token counts from every successful call.
	Usage UsageSink
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 2 * time.Second
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1024
	}
	return o
}

// complete runs the model-iteration protocol: each model in order, up to
// MaxRetries+1 attempts on rate limiting, immediate fall-through on any
// other failure, aggregated error when the whole list is exhausted.
func complete(ctx context.Context, t Transport, models []string, opts Options, req Request) (*Response, error) {
	if len(models) == 0 {
		return nil, errors.New("no models configured for capability")
	}

	var failures []string
	for _, model := range models {
		var lastErr error
		for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			req.Model = model
			req.MaxTokens = opts.MaxTokens
			resp, err := t.Complete(ctx, req)
			if err == nil {
				if opts.Usage != nil {
					opts.Usage.AddUsage(resp.Usage)
				}
				return resp, nil
			}
			lastErr = err

			var te *TransportError
			if !errors.As(err, &te) || !te.RateLimited {
				devlog.Tagf(t.Name(), "model %s failed: %v", model, err)
				break
			}
			if attempt == opts.MaxRetries {
				devlog.Tagf(t.Name(), "model %s rate limited, retries exhausted", model)
				break
			}

			delay := te.RetryAfter
			if delay <= 0 {
				delay = opts.InitialBackoff << attempt
			}
			devlog.Tagf(t.Name(), "model %s rate limited, retrying in %s", model, delay)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		failures = append(failures, fmt.Sprintf("%s: %v", model, lastErr))
	}

	return nil, fmt.Errorf("all models exhausted: %s", strings.Join(failures, "; "))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
