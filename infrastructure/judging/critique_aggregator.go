package judging

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/ahrav/go-tribunal/internal/domain"
)

// CritiqueAggregator merges issues raised by different judges, ranks them
// and keeps a short actionable list.
type CritiqueAggregator struct {
	rubric    *domain.Rubric
	threshold float64
	maxIssues int
}

// NewCritiqueAggregator creates a CritiqueAggregator. A non-positive
// similarity threshold or issue limit takes its default.
func NewCritiqueAggregator(rubric *domain.Rubric, similarity float64, maxIssues int) (*CritiqueAggregator, error) {
	if rubric == nil {
		return nil, ErrNilRubric
	}
	if similarity <= 0 || similarity > 1 {
		similarity = DefaultSimilarityThreshold
	}
	if maxIssues <= 0 {
		maxIssues = DefaultMaxIssues
	}
	return &CritiqueAggregator{rubric: rubric, threshold: similarity, maxIssues: maxIssues}, nil
}

// issueGroup accumulates near-duplicate issues on one dimension.
type issueGroup struct {
	dimension string
	text      string
	severity  domain.Severity
	quote     string
	fix       string
	roles     []domain.JudgeRole
	words     []map[string]struct{}
	count     int
}

func (g *issueGroup) matches(words map[string]struct{}, threshold float64) bool {
	for _, w := range g.words {
		if jaccard(w, words) > threshold {
			return true
		}
	}
	return false
}

func (g *issueGroup) add(role domain.JudgeRole, is domain.Issue, words map[string]struct{}) {
	g.count++
	g.words = append(g.words, words)
	if is.Severity.Score() > g.severity.Score() || g.severity == "" {
		g.severity = is.Severity
	}
	if len(is.Quote) > len(g.quote) {
		g.quote = is.Quote
	}
	if len(is.SuggestedFix) > len(g.fix) {
		g.fix = is.SuggestedFix
	}
	for _, r := range g.roles {
		if r == role {
			return
		}
	}
	g.roles = append(g.roles, role)
}

// Aggregate flattens every verdict's issues, merges issues on the same
// dimension whose word sets overlap by more than the similarity threshold,
// and returns the highest-priority groups.
//
// priority = agreement·4 + severity + (fix ? 2 : 0) + severity·weight·5,
// where agreement is the share of judges that raised the issue and severity
// is the merged group's highest severity on the 1..3 scale.
func (c *CritiqueAggregator) Aggregate(verdicts []domain.Verdict) domain.CritiqueReport {
	caser := cases.Fold()

	judges := make(map[domain.JudgeRole]struct{}, len(verdicts))
	var (
		groups []*issueGroup
		total  int
	)
	for _, v := range verdicts {
		judges[v.Role] = struct{}{}
		for _, is := range v.Issues {
			total++
			words := wordSet(caser, is.Description)
			var target *issueGroup
			for _, g := range groups {
				if g.dimension == is.Dimension && g.matches(words, c.threshold) {
					target = g
					break
				}
			}
			if target == nil {
				target = &issueGroup{dimension: is.Dimension, text: is.Description}
				groups = append(groups, target)
			}
			target.add(v.Role, is, words)
		}
	}

	issues := make([]domain.PrioritizedIssue, 0, len(groups))
	for _, g := range groups {
		issues = append(issues, c.prioritize(g, len(judges)))
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].PriorityScore > issues[j].PriorityScore })
	if len(issues) > c.maxIssues {
		issues = issues[:c.maxIssues]
	}

	report := domain.CritiqueReport{
		Issues:      issues,
		Summary:     summarizeIssues(issues),
		TotalRaised: total,
	}
	if len(issues) > 0 {
		top := issues[0]
		report.TopPriority = &top
	}
	return report
}

func (c *CritiqueAggregator) prioritize(g *issueGroup, judges int) domain.PrioritizedIssue {
	ratio := 0.0
	if judges > 0 {
		ratio = float64(len(g.roles)) / float64(judges)
	}
	sev := float64(g.severity.Score())
	score := ratio*4 + sev + sev*c.rubric.Weight(g.dimension)*5
	if g.fix != "" {
		score += 2
	}
	score = math.Round(score*100) / 100

	return domain.PrioritizedIssue{
		Dimension:          g.dimension,
		Issue:              g.text,
		SuggestedFix:       g.fix,
		Priority:           domain.PriorityForScore(score),
		PriorityScore:      score,
		Severity:           g.severity,
		Quote:              g.quote,
		AgreedByEvaluators: len(g.roles),
		RaisedBy:           g.roles,
		Occurrences:        g.count,
	}
}

// Similarity returns the Jaccard similarity of the case-folded,
// punctuation-free word sets of a and b.
func Similarity(a, b string) float64 {
	caser := cases.Fold()
	return jaccard(wordSet(caser, a), wordSet(caser, b))
}

func wordSet(caser cases.Caser, s string) map[string]struct{} {
	fields := strings.FieldsFunc(caser.String(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func summarizeIssues(issues []domain.PrioritizedIssue) string {
	if len(issues) == 0 {
		return "no issues raised"
	}
	counts := make(map[domain.Priority]int, 4)
	for _, is := range issues {
		counts[is.Priority]++
	}
	noun := "issues"
	if len(issues) == 1 {
		noun = "issue"
	}
	return fmt.Sprintf("%d prioritized %s: %d critical, %d high, %d medium, %d low",
		len(issues), noun,
		counts[domain.PriorityCritical], counts[domain.PriorityHigh],
		counts[domain.PriorityMedium], counts[domain.PriorityLow])
}
