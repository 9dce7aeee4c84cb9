package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-tribunal/internal/ports"
)

type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware bounds every request by timeout. A deadline hit by this
// layer, rather than the caller's own, is reported as ports.ErrTimeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM { return &timeoutLLM{next: next, timeout: timeout} }
}

func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if t.timeout <= 0 {
		return t.next.DoRequest(ctx, prompt, opts)
	}
	tctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, in, out, err := t.next.DoRequest(tctx, prompt, opts)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ports.ErrTimeout) {
		err = fmt.Errorf("%w after %s: %w", ports.ErrTimeout, t.timeout, err)
	}
	return resp, in, out, err
}

func (t *timeoutLLM) GetModel() string  { return t.next.GetModel() }
func (t *timeoutLLM) SetModel(m string) { t.next.SetModel(m) }
