package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-tribunal/internal/domain"
)

func edit(id, orig, repl string) domain.SuggestedEdit {
	return domain.SuggestedEdit{ID: id, Dimension: domain.DimensionClarity, OriginalText: orig, ReplacementText: repl}
}

func skippedReasons(res *domain.ReconcileResult) map[string]string {
	out := map[string]string{}
	for _, s := range res.Skipped {
		out[s.Edit.ID] = s.Reason
	}
	return out
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		edits       []domain.SuggestedEdit
		want        string
		wantApplied []string
		wantSkipped map[string]string
	}{
		{
			name:        "applies independent edits",
			doc:         "The cat sat. The dog ran.",
			edits:       []domain.SuggestedEdit{edit("1", "cat sat", "cat slept"), edit("2", "dog ran", "dog walked")},
			want:        "The cat slept. The dog walked.",
			wantApplied: []string{"1", "2"},
			wantSkipped: map[string]string{},
		},
		{
			name:        "earlier edit wins an overlap",
			doc:         "alpha beta gamma",
			edits:       []domain.SuggestedEdit{edit("1", "alpha beta", "A B"), edit("2", "beta gamma", "B G")},
			want:        "A B gamma",
			wantApplied: []string{"1"},
			wantSkipped: map[string]string{"2": ReasonOverlap},
		},
		{
			name:        "repeated text claims the next free occurrence",
			doc:         "ok. ok.",
			edits:       []domain.SuggestedEdit{edit("1", "ok.", "fine."), edit("2", "ok.", "good.")},
			want:        "fine. good.",
			wantApplied: []string{"1", "2"},
			wantSkipped: map[string]string{},
		},
		{
			name: "skips missing empty and no-op edits",
			doc:  "Some text here.",
			edits: []domain.SuggestedEdit{
				edit("missing", "absent", "x"),
				edit("empty", "  ", "x"),
				edit("noop", "Some  text", "Some text"),
				edit("real", "here", "there"),
			},
			want:        "Some text there.",
			wantApplied: []string{"real"},
			wantSkipped: map[string]string{
				"missing": ReasonNotFound,
				"empty":   ReasonEmptyOriginal,
				"noop":    ReasonNoop,
			},
		},
		{
			name:        "deletion",
			doc:         "Keep this. Drop this.",
			edits:       []domain.SuggestedEdit{edit("1", " Drop this.", "")},
			want:        "Keep this.",
			wantApplied: []string{"1"},
			wantSkipped: map[string]string{},
		},
		{
			name:        "no edits",
			doc:         "unchanged",
			want:        "unchanged",
			wantSkipped: map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New().Reconcile(context.Background(), tt.doc, tt.edits)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.RevisedDocument)

			var applied []string
			for _, e := range res.Applied {
				applied = append(applied, e.ID)
			}
			assert.Equal(t, tt.wantApplied, applied)
			assert.Equal(t, tt.wantSkipped, skippedReasons(res))
			assert.Equal(t, len(tt.edits), len(res.Applied)+len(res.Skipped))
		})
	}
}

func TestReconcile_AppliedEditsNeverOverlap(t *testing.T) {
	doc := "one two three four five"
	edits := []domain.SuggestedEdit{
		edit("a", "two three", "2 3"),
		edit("b", "three four", "3 4"),
		edit("c", "four five", "4 5"),
		edit("d", "one", "1"),
	}
	res, err := New().Reconcile(context.Background(), doc, edits)
	require.NoError(t, err)
	assert.Equal(t, "1 2 3 4 5", res.RevisedDocument)
	assert.Equal(t, map[string]string{"b": ReasonOverlap}, skippedReasons(res))
}

func TestReconcile_NoopSimilarity(t *testing.T) {
	e := edit("1", "The results were good", "The results were good.")

	res, err := New().Reconcile(context.Background(), "The results were good", []domain.SuggestedEdit{e})
	require.NoError(t, err)
	assert.Len(t, res.Applied, 1, "default only skips identical text")

	res, err = New(WithNoopSimilarity(0.9)).Reconcile(context.Background(), "The results were good", []domain.SuggestedEdit{e})
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, "The results were good", res.RevisedDocument)
}

func TestReconcile_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Reconcile(ctx, "doc", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("a  b", "a b"))
	assert.InDelta(t, 0.75, Similarity("café", "cafe"), 1e-9)
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
}
