package judging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/testutils"
)

func newCritiqueAggregator(t *testing.T) *CritiqueAggregator {
	t.Helper()
	c, err := NewCritiqueAggregator(domain.DefaultRubric(), 0, 0)
	require.NoError(t, err)
	return c
}

func issue(dim string, sev domain.Severity, desc string) domain.Issue {
	return domain.Issue{Dimension: dim, Severity: sev, Description: desc}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "weak thesis", "weak thesis", 1},
		{"case and punctuation", "Hello, World!", "hello world", 1},
		{"disjoint", "weak thesis", "missing sources", 0},
		{"partial", "alpha beta gamma", "alpha beta gamma delta epsilon", 0.6},
		{"both empty", "", "...", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCritiqueAggregator_MergesNearDuplicates(t *testing.T) {
	rubric := domain.DefaultRubric()
	dim := domain.DimensionEvidenceQuality

	s1 := issue(dim, domain.SeverityMedium, "Claims lack supporting citations and evidence")
	s2 := issue(dim, domain.SeverityLow, "claims lack supporting citations and evidence.")
	a1 := issue(dim, domain.SeverityHigh, "Claims lack supporting citations and data evidence")
	a1.Quote = "studies show"
	g1 := issue(dim, domain.SeverityLow, "The claims lack supporting citations and evidence")
	g1.SuggestedFix = "cite sources"
	g2 := issue(dim, domain.SeverityMedium, "Claims lack supporting citations, and evidence!")
	g2.SuggestedFix = "cite the 2023 survey for each figure"
	g2.Quote = "studies"

	verdicts := []domain.Verdict{
		testutils.MustVerdict(rubric, domain.RoleSkeptic, nil, 6, 0.8, s1, s2),
		testutils.MustVerdict(rubric, domain.RoleAdvocate, nil, 6, 0.8, a1),
		testutils.MustVerdict(rubric, domain.RoleGeneralist, nil, 6, 0.8, g1, g2),
	}

	report := newCritiqueAggregator(t).Aggregate(verdicts)
	require.Len(t, report.Issues, 1)
	got := report.Issues[0]

	assert.Equal(t, dim, got.Dimension)
	assert.Equal(t, s1.Description, got.Issue, "first-seen wording is kept")
	assert.Equal(t, 3, got.AgreedByEvaluators)
	assert.Equal(t, []domain.JudgeRole{domain.RoleSkeptic, domain.RoleAdvocate, domain.RoleGeneralist}, got.RaisedBy)
	assert.Equal(t, 5, got.Occurrences)
	assert.Equal(t, domain.SeverityHigh, got.Severity)
	assert.Equal(t, "studies show", got.Quote)
	assert.Equal(t, "cite the 2023 survey for each figure", got.SuggestedFix)
	// 1·4 + 3 + 2 + 3·0.20·5
	assert.Equal(t, 12.0, got.PriorityScore)
	assert.Equal(t, domain.PriorityCritical, got.Priority)

	assert.Equal(t, 5, report.TotalRaised)
	require.NotNil(t, report.TopPriority)
	assert.Equal(t, got, *report.TopPriority)
	assert.Equal(t, "1 prioritized issue: 1 critical, 0 high, 0 medium, 0 low", report.Summary)
}

func TestCritiqueAggregator_KeepsDistinctIssues(t *testing.T) {
	rubric := domain.DefaultRubric()
	verdicts := []domain.Verdict{
		testutils.MustVerdict(rubric, domain.RoleSkeptic, nil, 6, 0.8,
			issue(domain.DimensionClarity, domain.SeverityLow, "jargon is not defined"),
			issue(domain.DimensionStyle, domain.SeverityLow, "jargon is not defined"),
		),
		testutils.MustVerdict(rubric, domain.RoleAdvocate, nil, 6, 0.8,
			issue(domain.DimensionClarity, domain.SeverityLow, "alpha beta gamma"),
			issue(domain.DimensionClarity, domain.SeverityLow, "alpha beta gamma delta epsilon"),
		),
	}

	report := newCritiqueAggregator(t).Aggregate(verdicts)
	assert.Len(t, report.Issues, 4, "same text on another dimension and 0.6 overlap stay separate")
}

func TestCritiqueAggregator_PriorityScore(t *testing.T) {
	rubric := domain.DefaultRubric()
	is := issue(domain.DimensionClarity, domain.SeverityMedium, "run-on sentences")
	is.SuggestedFix = "split long sentences"
	verdicts := []domain.Verdict{
		testutils.MustVerdict(rubric, domain.RoleSkeptic, nil, 6, 0.8, is),
		testutils.MustVerdict(rubric, domain.RoleAdvocate, nil, 6, 0.8),
		testutils.MustVerdict(rubric, domain.RoleGeneralist, nil, 6, 0.8,
			issue(domain.DimensionStyle, domain.SeverityLow, "tone wobbles")),
	}

	report := newCritiqueAggregator(t).Aggregate(verdicts)
	require.Len(t, report.Issues, 2)

	// 4/3 + 2 + 2 + 2·0.15·5 = 6.83
	assert.Equal(t, 6.83, report.Issues[0].PriorityScore)
	assert.Equal(t, domain.PriorityHigh, report.Issues[0].Priority)
	// 4/3 + 1 + 1·0.10·5 = 2.83
	assert.Equal(t, 2.83, report.Issues[1].PriorityScore)
	assert.Equal(t, domain.PriorityLow, report.Issues[1].Priority)
	assert.Equal(t, "2 prioritized issues: 0 critical, 1 high, 0 medium, 1 low", report.Summary)
}

func TestCritiqueAggregator_TruncatesAndSorts(t *testing.T) {
	rubric := domain.DefaultRubric()
	var issues []domain.Issue
	sevs := []domain.Severity{domain.SeverityLow, domain.SeverityHigh, domain.SeverityMedium}
	for i := range 8 {
		issues = append(issues, issue(domain.DimensionStructure, sevs[i%3], fmt.Sprintf("problem number%d", i)))
	}
	verdicts := []domain.Verdict{testutils.MustVerdict(rubric, domain.RoleSkeptic, nil, 6, 0.8, issues...)}

	report := newCritiqueAggregator(t).Aggregate(verdicts)
	require.Len(t, report.Issues, DefaultMaxIssues)
	assert.Equal(t, 8, report.TotalRaised)
	for i := 1; i < len(report.Issues); i++ {
		assert.GreaterOrEqual(t, report.Issues[i-1].PriorityScore, report.Issues[i].PriorityScore)
	}
	assert.Equal(t, domain.SeverityHigh, report.TopPriority.Severity)
}

func TestCritiqueAggregator_Empty(t *testing.T) {
	rubric := domain.DefaultRubric()
	report := newCritiqueAggregator(t).Aggregate([]domain.Verdict{testutils.MustVerdict(rubric, domain.RoleSkeptic, nil, 6, 0.8)})
	assert.Empty(t, report.Issues)
	assert.Nil(t, report.TopPriority)
	assert.Equal(t, "no issues raised", report.Summary)

	_, err := NewCritiqueAggregator(nil, 0.6, 5)
	assert.ErrorIs(t, err, ErrNilRubric)
}
