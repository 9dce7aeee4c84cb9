package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ahrav/go-tribunal/internal/application"
	"github.com/ahrav/go-tribunal/internal/domain"
)

// Version is set at build time.
var Version = "dev"

const envPrefix = "TRIBUNAL"

// newRootCmd builds the command tree. Settings resolve in the order
// flag, TRIBUNAL_* environment variable, config file, built-in default.
func newRootCmd(deps engineDeps) *cobra.Command {
	v := newViper()
	root := &cobra.Command{
		Use:          "tribunal",
		Version:      Version,
		Short:        "Score documents with a judge panel and refine them to a target",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "path to a YAML engine config")
	pf.String("model", "", `judge model as "provider/model[@version]"`)
	pf.String("fixer-model", "", "model for fixers; defaults to the judge model")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "json or console")
	pf.Bool("cache", false, "cache initial-round judge replies")
	pf.String("metrics-file", "", "write Prometheus metrics here on exit")

	mustBind(v.BindPFlag("config", pf.Lookup("config")))
	mustBind(v.BindPFlag("llm.model", pf.Lookup("model")))
	mustBind(v.BindPFlag("llm.fixer_model", pf.Lookup("fixer-model")))
	mustBind(v.BindPFlag("logging.level", pf.Lookup("log-level")))
	mustBind(v.BindPFlag("logging.format", pf.Lookup("log-format")))
	mustBind(v.BindPFlag("cache.enabled", pf.Lookup("cache")))
	mustBind(v.BindPFlag("metrics_file", pf.Lookup("metrics-file")))

	root.AddCommand(newScoreCmd(v, deps), newRefineCmd(v, deps))
	return root
}

// newViper reads TRIBUNAL_* variables, mapping "llm.model" to
// TRIBUNAL_LLM_MODEL.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// mustBind panics on a binding error, which only a nil flag can cause.
func mustBind(err error) {
	if err != nil {
		panic(err)
	}
}

// loadConfig resolves the engine configuration from v.
func loadConfig(v *viper.Viper) (*application.EngineConfig, error) {
	var cfg *application.EngineConfig
	if path := v.GetString("config"); path != "" {
		c, err := application.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		c := application.DefaultEngineConfig()
		cfg = &c
	}

	if v.IsSet("llm.model") {
		cfg.LLM.Model = v.GetString("llm.model")
	}
	if v.IsSet("llm.fixer_model") {
		cfg.LLM.FixerModel = v.GetString("llm.fixer_model")
	}
	if v.IsSet("llm.base_url") {
		cfg.LLM.BaseURL = v.GetString("llm.base_url")
	}
	if v.IsSet("logging.level") {
		cfg.Logging.Level = v.GetString("logging.level")
	}
	if v.IsSet("logging.format") {
		cfg.Logging.Format = v.GetString("logging.format")
	}
	if v.IsSet("cache.enabled") {
		cfg.Cache.Enabled = v.GetBool("cache.enabled")
	}
	if v.IsSet("refinement.target_score") {
		cfg.Refinement.TargetScore = v.GetFloat64("refinement.target_score")
	}
	if v.IsSet("refinement.max_attempts") {
		cfg.Refinement.MaxAttempts = v.GetInt("refinement.max_attempts")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readDocument reads the file named by args, or stdin for none or "-".
func readDocument(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", domain.ErrEmptyDocument
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
