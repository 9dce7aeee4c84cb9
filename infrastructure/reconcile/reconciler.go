// Package reconcile applies fixer edits to a document without letting two
// edits touch the same text.
package reconcile

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

var _ ports.Reconciler = (*Reconciler)(nil)

// Skip reasons reported in domain.SkippedEdit.
const (
	ReasonEmptyOriginal = "empty original text"
	ReasonNoop          = "replacement does not change the text"
	ReasonNotFound      = "original text not found"
	ReasonOverlap       = "overlaps an accepted edit"
)

// DefaultNoopSimilarity treats only whitespace-only changes as no-ops.
const DefaultNoopSimilarity = 1.0

// Reconciler is the in-process ports.Reconciler. Edits are considered in the
// order given; each claims the first occurrence of its original text that
// no earlier accepted edit covers. Accepted edits are applied end to start so
// byte offsets stay valid.
type Reconciler struct {
	noopSimilarity float64
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNoopSimilarity skips edits whose replacement is at least this similar
// to the original (normalized Levenshtein, 0..1).
func WithNoopSimilarity(s float64) Option {
	return func(r *Reconciler) {
		if s > 0 && s <= 1 {
			r.noopSimilarity = s
		}
	}
}

// New creates a Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{noopSimilarity: DefaultNoopSimilarity}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type span struct {
	start, end int
	edit       domain.SuggestedEdit
}

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

// Reconcile implements ports.Reconciler.
func (r *Reconciler) Reconcile(ctx context.Context, document string, edits []domain.SuggestedEdit) (*domain.ReconcileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	res := &domain.ReconcileResult{RevisedDocument: document}
	skip := func(e domain.SuggestedEdit, reason string) {
		res.Skipped = append(res.Skipped, domain.SkippedEdit{Edit: e, Reason: reason})
	}

	var accepted []span
	for _, e := range edits {
		switch {
		case strings.TrimSpace(e.OriginalText) == "":
			skip(e, ReasonEmptyOriginal)
			continue
		case Similarity(e.OriginalText, e.ReplacementText) >= r.noopSimilarity:
			skip(e, ReasonNoop)
			continue
		}

		sp, found, free := claim(document, e, accepted)
		switch {
		case !found:
			skip(e, ReasonNotFound)
		case !free:
			skip(e, ReasonOverlap)
		default:
			accepted = append(accepted, sp)
			res.Applied = append(res.Applied, e)
		}
	}

	ordered := slices.Clone(accepted)
	slices.SortFunc(ordered, func(a, b span) int { return b.start - a.start })
	out := document
	for _, sp := range ordered {
		out = out[:sp.start] + sp.edit.ReplacementText + out[sp.end:]
	}
	res.RevisedDocument = out
	return res, nil
}

// claim finds the first occurrence of e's original text that does not overlap
// an accepted span.
func claim(document string, e domain.SuggestedEdit, accepted []span) (sp span, found, free bool) {
	for from := 0; from <= len(document); {
		idx := strings.Index(document[from:], e.OriginalText)
		if idx < 0 {
			return span{}, found, false
		}
		found = true
		cand := span{start: from + idx, end: from + idx + len(e.OriginalText), edit: e}
		if !slices.ContainsFunc(accepted, cand.overlaps) {
			return cand, true, true
		}
		from = cand.start + 1
	}
	return span{}, found, false
}

// Similarity is the normalized Levenshtein similarity of a and b after
// collapsing whitespace. Identical texts score 1.
func Similarity(a, b string) float64 {
	a, b = strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " ")
	if a == b {
		return 1
	}
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}
