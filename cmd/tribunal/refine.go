package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ahrav/go-tribunal/internal/domain"
)

type refineOutput struct {
	InitialScore float64                  `json:"initial_score"`
	Result       *domain.RefinementResult `json:"result"`
}

func newRefineCmd(v *viper.Viper, deps engineDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "refine [file|-]",
		Short: "Score a document and revise it until it reaches the target score",
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

			initial, err := e.evaluator.Score(cmd.Context(), doc)
			if err != nil {
				return err
			}
			res, refineErr := e.refiner.Refine(cmd.Context(), doc, initial)
			if res == nil {
				return refineErr
			}

			// A partial result is still worth printing.
			if err := writeJSON(cmd.OutOrStdout(), refineOutput{InitialScore: initial.OverallScore, Result: res}); err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, []byte(res.FinalDocument), 0o644); err != nil {
					return fmt.Errorf("write refined document: %w", err)
				}
			}
			if err := e.writeMetrics(v.GetString("metrics_file")); err != nil {
				return err
			}
			return refineErr
		},
	}

	f := cmd.Flags()
	f.Float64("target-score", 0, "overall score that ends refinement")
	f.Int("max-attempts", 0, "maximum revise-and-rescore attempts")
	f.StringVarP(&output, "output", "o", "", "write the final document to this path")
	mustBind(v.BindPFlag("refinement.target_score", f.Lookup("target-score")))
	mustBind(v.BindPFlag("refinement.max_attempts", f.Lookup("max-attempts")))
	return cmd
}
