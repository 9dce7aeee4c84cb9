// Package middleware provides cross-cutting concerns for the engine: LLM
// usage budgets and Prometheus metrics.
package middleware

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-tribunal/infrastructure/llm"
	"github.com/ahrav/go-tribunal/internal/domain"
)

// Budget defines LLM consumption limits.
type Budget struct {
	// MaxTokens limits input plus output tokens. Zero means unlimited.
	MaxTokens int64

	// MaxCalls limits provider requests. Zero means unlimited.
	MaxCalls int64
}

// Usage is a snapshot of consumed budget.
type Usage struct {
	Tokens int64
	Calls  int64
}

// BudgetObserver provides observability hooks for budget operations.
type BudgetObserver interface {
	// PreCheck is called after a call was admitted and before it runs.
	PreCheck(ctx context.Context, usage Usage, budget Budget)

	// PostCheck is called after the call with the updated usage.
	PostCheck(ctx context.Context, usage Usage, budget Budget, elapsed time.Duration, err error)
}

// BudgetManager enforces token and call limits across every LLM client it
// wraps. Usage is shared and updated atomically, so one manager can guard an
// oracle and a fixer together.
type BudgetManager struct {
	budget   Budget
	scope    string
	observer BudgetObserver

	tokens atomic.Int64
	calls  atomic.Int64
}

// NewBudgetManager creates a BudgetManager. scope names the guarded clients
// in errors. observer may be nil.
func NewBudgetManager(budget Budget, scope string, observer BudgetObserver) (*BudgetManager, error) {
	if budget.MaxTokens < 0 {
		return nil, fmt.Errorf("budget manager: max_tokens cannot be negative, got %d", budget.MaxTokens)
	}
	if budget.MaxCalls < 0 {
		return nil, fmt.Errorf("budget manager: max_calls cannot be negative, got %d", budget.MaxCalls)
	}
	return &BudgetManager{budget: budget, scope: scope, observer: observer}, nil
}

// Usage returns the current consumption.
func (bm *BudgetManager) Usage() Usage {
	return Usage{Tokens: bm.tokens.Load(), Calls: bm.calls.Load()}
}

// Budget returns the configured limits.
func (bm *BudgetManager) Budget() Budget { return bm.budget }

// Middleware returns an llm.Middleware that refuses requests once a limit is
// reached. Token usage is only known after a call, so the token limit can be
// overshot by the call that crosses it; the next call is refused.
func (bm *BudgetManager) Middleware() llm.Middleware {
	return func(next llm.CoreLLM) llm.CoreLLM {
		return &budgetLLM{next: next, bm: bm}
	}
}

// admit reserves one call or reports the exhausted limit.
func (bm *BudgetManager) admit() error {
	if bm.budget.MaxTokens > 0 {
		if used := bm.tokens.Load(); used >= bm.budget.MaxTokens {
			return domain.NewBudgetExceededError("tokens", int(bm.budget.MaxTokens), int(used), bm.scope)
		}
	}
	calls := bm.calls.Add(1)
	if bm.budget.MaxCalls > 0 && calls > bm.budget.MaxCalls {
		bm.calls.Add(-1)
		return domain.NewBudgetExceededError("calls", int(bm.budget.MaxCalls), int(calls), bm.scope)
	}
	return nil
}

type budgetLLM struct {
	next llm.CoreLLM
	bm   *BudgetManager
}

func (b *budgetLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := b.bm.admit(); err != nil {
		return "", 0, 0, err
	}
	if b.bm.observer != nil {
		b.bm.observer.PreCheck(ctx, b.bm.Usage(), b.bm.budget)
	}

	start := time.Now()
	resp, in, out, err := b.next.DoRequest(ctx, prompt, opts)
	b.bm.tokens.Add(int64(in + out))

	if b.bm.observer != nil {
		b.bm.observer.PostCheck(ctx, b.bm.Usage(), b.bm.budget, time.Since(start), err)
	}
	return resp, in, out, err
}

func (b *budgetLLM) GetModel() string  { return b.next.GetModel() }
func (b *budgetLLM) SetModel(m string) { b.next.SetModel(m) }
