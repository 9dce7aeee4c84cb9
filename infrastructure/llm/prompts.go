package llm

import (
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/ahrav/go-tribunal/internal/domain"
)

// promptFuncs is the function map shared by the judge and fixer templates.
func promptFuncs() template.FuncMap {
	return template.FuncMap{
		"add":   func(a, b int) int { return a + b },
		"score": func(v float64) string { return fmt.Sprintf("%.1f", v) },
		"pct":   func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
		"join":  strings.Join,
		"upper": strings.ToUpper,
		"truncate": truncate,
	}
}

// truncate shortens s to at most n bytes, ending with "..." when there is
// room, without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	suffix := ""
	if n > 3 {
		n -= 3
		suffix = "..."
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + suffix
}

const judgeSystemTemplate = `You sit on a panel of document reviewers as the {{.Persona.Role}}.
{{.Persona.Stance}}
{{- if .Persona.FocusDimensions}}
Pay particular attention to: {{join .Persona.FocusDimensions ", "}}.
{{- end}}
Score on a 0 to 10 scale with one decimal place. Respond with a single JSON object and nothing else.`

const judgeUserTemplate = `Evaluate the document below against this rubric.

RUBRIC
{{- range $i, $d := .Rubric.Dimensions}}
{{add $i 1}}. {{$d.Name}} (weight {{pct $d.Weight}}){{if $d.Description}}: {{$d.Description}}{{end}}
{{- if $d.Guidelines}}
   Guidelines: {{$d.Guidelines}}
{{- end}}
{{- end}}
{{- if eq .Phase "discussion"}}

DISCUSSION ROUND
The panel disagreed on: {{join .Disagreement.DisputedDimensions ", "}}.
Your previous scores:
{{- range .PriorVerdict.Scores}}
- {{.Dimension}}: {{score .Score}} ({{truncate .Reasoning 240}})
{{- end}}
Other judges:
{{- range .PeerVerdicts}}
[{{.Role}}] overall {{score .OverallScore}}
{{- range .Scores}}
- {{.Dimension}}: {{score .Score}} ({{truncate .Reasoning 240}})
{{- end}}
{{- end}}
Reconsider your scores in light of their reasoning. Change a score only if their
arguments persuade you, and by no more than {{score .MaxRevision}} points.
{{- else if eq .Phase "tiebreak"}}

ARBITRATION
The panel could not agree on: {{join .Disagreement.DisputedDimensions ", "}}.
{{- range .Disagreement.Positions}}
[{{.Role}}] overall {{score .OverallScore}}:{{range .Disputed}} {{.Dimension}}={{score .Score}}{{end}}
{{- end}}
Verdicts:
{{- range .PeerVerdicts}}
[{{.Role}}]
{{- range .Scores}}
- {{.Dimension}}: {{score .Score}} ({{truncate .Reasoning 240}})
{{- end}}
{{- end}}
Give your own independent score for every dimension and explain in "resolution"
how you settled each dispute.
{{- end}}

DOCUMENT
<<<
{{.Document}}
>>>

Reply with JSON of this shape:
{"dimensions":[{"dimension":"<name>","score":<0-10>,"reasoning":"...","issues":["..."]}],
 "critique":"...",
 "issues":[{"dimension":"<name>","severity":"low|medium|high","description":"...","quote":"...","suggested_fix":"..."}],
 "confidence":<0-1>{{if eq .Phase "tiebreak"}},
 "resolution":"..."{{end}}}
Include exactly one entry per rubric dimension: {{join .Rubric.Names ", "}}.
{{- if .Strict}}

Your previous reply could not be parsed. Output ONLY the JSON object: no prose,
no markdown fences, no trailing commas. Every score and the confidence are required.
{{- end}}`

const fixerTemplate = `You are revising a document to raise its "{{.Dimension.Name}}" score
from {{score .CurrentScore}} to at least {{score .TargetScore}} out of 10.
{{- if .Dimension.Description}}
Dimension: {{.Dimension.Description}}
{{- end}}
{{- if .Dimension.Guidelines}}
Guidelines: {{.Dimension.Guidelines}}
{{- end}}

Reviewer critique:
{{.Critique}}
{{- if .Issues}}

Prioritized issues:
{{- range .Issues}}
- [{{upper (print .Priority)}}] {{.Issue}}{{if .Quote}} (quote: "{{truncate .Quote 200}}"){{end}}{{if .SuggestedFix}} Fix: {{.SuggestedFix}}{{end}}
{{- end}}
{{- end}}

DOCUMENT
<<<
{{.Document}}
>>>

Propose targeted edits. Each original_text must be copied verbatim from the
document and must not overlap any other edit. Reply with JSON:
{"edits":[{"original_text":"...","replacement_text":"...","rationale":"..."}]}`

var (
	judgeSystemTmpl = template.Must(template.New("judgeSystem").Funcs(promptFuncs()).Parse(judgeSystemTemplate))
	judgeUserTmpl   = template.Must(template.New("judgeUser").Funcs(promptFuncs()).Parse(judgeUserTemplate))
	fixerTmpl       = template.Must(template.New("fixer").Funcs(promptFuncs()).Parse(fixerTemplate))
)

// judgePromptData flattens a JudgmentRequest for the templates.
type judgePromptData struct {
	domain.JudgmentRequest
	Rubric struct {
		Dimensions []domain.ScoringDimension
		Names      []string
	}
}

// BuildJudgePrompt renders the system and user prompts for req.
func BuildJudgePrompt(req domain.JudgmentRequest) (system, user string, err error) {
	if req.Rubric == nil {
		return "", "", fmt.Errorf("judge prompt: rubric is required")
	}
	switch req.Phase {
	case domain.PhaseDiscussion:
		if req.PriorVerdict == nil || req.Disagreement == nil {
			return "", "", fmt.Errorf("judge prompt: discussion requires a prior verdict and disagreement")
		}
	case domain.PhaseTiebreak:
		if req.Disagreement == nil {
			return "", "", fmt.Errorf("judge prompt: tiebreak requires a disagreement")
		}
	}

	data := judgePromptData{JudgmentRequest: req}
	data.Rubric.Dimensions = req.Rubric.Dimensions()
	data.Rubric.Names = req.Rubric.Names()

	var sb strings.Builder
	if err := judgeSystemTmpl.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render judge system prompt: %w", err)
	}
	system = sb.String()

	sb.Reset()
	if err := judgeUserTmpl.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render judge prompt: %w", err)
	}
	return system, sb.String(), nil
}

// BuildFixerPrompt renders the fixer prompt for req.
func BuildFixerPrompt(req domain.FixRequest) (string, error) {
	var sb strings.Builder
	if err := fixerTmpl.Execute(&sb, req); err != nil {
		return "", fmt.Errorf("render fixer prompt: %w", err)
	}
	return sb.String(), nil
}
