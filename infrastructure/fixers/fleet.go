// Package fixers fans fix requests out to a bounded pool of fixers and
// gathers their edits.
package fixers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

var _ ports.FixDeployer = (*Fleet)(nil)

// DefaultWorkers is the pool size used when Config.Workers is zero.
const DefaultWorkers = 4

// Config configures a Fleet.
type Config struct {
	// Workers bounds the number of fixers running at once.
	Workers int
	// Timeout bounds a single fixer call. Zero disables it.
	Timeout time.Duration
}

// Fleet is a ports.FixDeployer that runs one fixer call per request on an
// ants pool. Edits come back in request order. A failing fixer is recorded in
// the deployment and does not stop the others; Deploy returns an error only
// when the context ends or every fixer failed.
type Fleet struct {
	fixer   ports.Fixer
	timeout time.Duration
	events  ports.EventSink
	pool    *ants.Pool
}

// Option configures a Fleet.
type Option func(*Fleet)

// WithEventSink routes fixer failures to sink.
func WithEventSink(sink ports.EventSink) Option {
	return func(f *Fleet) {
		if sink != nil {
			f.events = sink
		}
	}
}

// NewFleet creates a Fleet. Call Close to release the pool.
func NewFleet(fixer ports.Fixer, cfg Config, opts ...Option) (*Fleet, error) {
	if fixer == nil {
		return nil, errors.New("fixer fleet: fixer is required")
	}
	if cfg.Workers < 0 || cfg.Timeout < 0 {
		return nil, fmt.Errorf("fixer fleet: invalid config %+v", cfg)
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}

	f := &Fleet{fixer: fixer, timeout: cfg.Timeout, events: ports.NopEventSink{}}
	for _, opt := range opts {
		opt(f)
	}

	pool, err := ants.NewPool(workers, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create fixer pool: %w", err)
	}
	f.pool = pool
	return f, nil
}

// Close releases the worker pool.
func (f *Fleet) Close() {
	f.pool.Release()
}

type fixOutcome struct {
	edits []domain.SuggestedEdit
	err   error
}

// Deploy implements ports.FixDeployer.
func (f *Fleet) Deploy(ctx context.Context, document string, requests []domain.FixRequest) (*domain.FixDeployment, error) {
	out := &domain.FixDeployment{}
	if len(requests) == 0 {
		return out, nil
	}

	outcomes := make([]fixOutcome, len(requests))
	var wg sync.WaitGroup
	for i := range requests {
		req := requests[i]
		if req.Document == "" {
			req.Document = document
		}
		wg.Add(1)
		err := f.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					outcomes[i] = fixOutcome{err: fmt.Errorf("fixer panicked: %v", p)}
				}
			}()
			outcomes[i] = f.run(ctx, req)
		})
		if err != nil {
			wg.Done()
			outcomes[i] = fixOutcome{err: fmt.Errorf("submit fixer: %w", err)}
		}
	}
	wg.Wait()

	var merr *multierror.Error
	for i, o := range outcomes {
		dim := requests[i].Dimension.Name
		out.FixersDeployed++
		if o.err != nil {
			merr = multierror.Append(merr, fmt.Errorf("fixer %s: %w", dim, o.err))
			out.Failures = append(out.Failures, domain.FixerFailure{Dimension: dim, Error: o.err.Error()})
			f.events.Emit(ctx, domain.NewEvent(domain.EventFixerFailed, domain.LevelWarn,
				"fixer failed", map[string]any{"dimension": dim, "error": o.err.Error()}))
			continue
		}
		for _, e := range o.edits {
			if e.Dimension == "" {
				e.Dimension = dim
			}
			if e.ID == "" {
				e.ID = uuid.NewString()
			}
			out.Edits = append(out.Edits, e)
		}
	}

	if err := ctx.Err(); err != nil {
		return out, err
	}
	if len(out.Failures) == len(requests) {
		return out, merr.ErrorOrNil()
	}
	return out, nil
}

func (f *Fleet) run(ctx context.Context, req domain.FixRequest) fixOutcome {
	if err := ctx.Err(); err != nil {
		return fixOutcome{err: err}
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	edits, err := f.fixer.ProposeFixes(ctx, req)
	return fixOutcome{edits: edits, err: err}
}
