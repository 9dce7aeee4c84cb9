package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ahrav/go-tribunal/internal/application"
	"github.com/ahrav/go-tribunal/internal/domain"
)

// scoreOutput is the JSON document the score command prints.
type scoreOutput struct {
	Score            float64                   `json:"score"`
	Method           domain.ConsensusMethod    `json:"consensus_method"`
	Confidence       float64                   `json:"confidence"`
	Breakdown        []domain.DimensionResult  `json:"breakdown"`
	Disagreement     domain.DisagreementResult `json:"disagreement"`
	Discussed        bool                      `json:"discussed"`
	Tiebroken        bool                      `json:"tiebroken"`
	NeedsHumanReview bool                      `json:"needs_human_review"`
	ReviewReason     string                    `json:"review_reason,omitempty"`
	Critique         domain.CritiqueReport     `json:"critique"`
	Duration         string                    `json:"duration"`
}

func newScoreCmd(v *viper.Viper, deps engineDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "score [file|-]",
		Short: "Score a document once and print the consensus",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			e, err := buildEngine(cfg, deps, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()

			ev, err := e.evaluator.Evaluate(cmd.Context(), doc)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), newScoreOutput(e, ev)); err != nil {
				return err
			}
			return e.writeMetrics(v.GetString("metrics_file"))
		},
	}
}

func newScoreOutput(e *engine, ev *application.Evaluation) scoreOutput {
	f := ev.Final
	return scoreOutput{
		Score:            f.OverallScore,
		Method:           f.Method,
		Confidence:       f.Confidence,
		Breakdown:        f.Breakdown,
		Disagreement:     ev.Disagreement,
		Discussed:        ev.Discussion != nil,
		Tiebroken:        ev.Tiebreak != nil,
		NeedsHumanReview: f.NeedsHumanReview,
		ReviewReason:     f.ReviewReason,
		Critique:         e.evaluator.Critiques().Aggregate(f.AllVerdicts()),
		Duration:         ev.Duration.Round(time.Millisecond).String(),
	}
}
