package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ahrav/go-wattwise/internal/application"
	"github.com/ahrav/go-wattwise/internal/catalog"
	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/validation"
)

// cli holds process-wide state shared by the commands.
type cli struct {
	out    io.Writer
	errOut io.Writer

	verbose bool
	logger  *zap.Logger
	// deps is passed to application.Bootstrap; tests set it to avoid
	// provider calls.
	deps application.Deps
}

type recommendFlags struct {
	input    string
	config   string
	catalog  string
	provider string
	model    string
	output   string
	parallel bool
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "wattwise",
		Short: "Recommend electricity plans from twelve months of usage",
		Long: `wattwise summarizes a household's usage, scores catalog plans against it
and explains the top choices. Every stage falls back to deterministic output
when the model fails, so a result is always produced for valid input.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.logger != nil {
				return nil
			}
			cfg := zap.NewProductionConfig()
			if c.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRecommendCmd(c), newCatalogCmd(c), newConfigCmd(c))
	return root
}

func newRecommendCmd(c *cli) *cobra.Command {
	var f recommendFlags
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Run the recommendation pipeline for a usage file",
		Long: `Reads a JSON request with twelve months of usage, the current plan and
preferences, then prints the pipeline result as JSON.

Example:
  wattwise recommend --input usage.json --catalog plans.yaml --provider anthropic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.recommend(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "", "usage request JSON file (required)")
	fl.StringVarP(&f.config, "config", "c", "", "YAML configuration file")
	fl.StringVar(&f.catalog, "catalog", "", "plan catalog file, overrides catalog.path")
	fl.StringVar(&f.provider, "provider", "", "inference provider, overrides llm.provider")
	fl.StringVar(&f.model, "model", "", "model name, overrides llm.model")
	fl.StringVarP(&f.output, "output", "o", "", "write the result here instead of stdout")
	fl.BoolVar(&f.parallel, "parallel-narrative", false, "narrate each recommended plan separately")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (c *cli) recommend(cmd *cobra.Command, f recommendFlags) error {
	cfg, err := c.loadConfig(f.config)
	if err != nil {
		return err
	}
	if f.provider != "" && f.provider != cfg.LLM.Provider {
		cfg.LLM.Provider = f.provider
		cfg.LLM.APIKey = ""
		cfg.ResolveSecrets(os.Getenv)
	}
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
	if f.catalog != "" {
		cfg.Catalog.Path = f.catalog
	}
	if f.parallel {
		cfg.Narrative.Parallel = true
	}

	in, err := readInput(f.input)
	if err != nil {
		return err
	}

	deps := c.deps
	deps.Logger = c.logger
	app, err := application.Bootstrap(cmd.Context(), cfg, deps)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			c.logger.Warn("failed to close application", zap.Error(cerr))
		}
	}()

	res, runErr := app.Pipeline.Run(cmd.Context(), in)
	if res != nil {
		if err := c.writeResult(f.output, res); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("recommendation failed: %w", runErr)
	}
	if res.Degraded() {
		c.logger.Warn("result contains fallback output", zap.Int("errors", len(res.Errors)))
	}
	return nil
}

func (c *cli) loadConfig(path string) (application.Config, error) {
	if path != "" {
		return application.LoadConfig(path)
	}
	cfg := application.DefaultConfig()
	cfg.ResolveSecrets(os.Getenv)
	return cfg, nil
}

func (c *cli) writeResult(path string, res *domain.PipelineResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = c.out.Write(data)
		return err
	}
	if err := os.WriteFile(filepath.Clean(path), data, 0o600); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// readInput decodes and validates a usage request. Unknown fields are
// rejected so misspelled keys do not silently become zero values.
func readInput(path string) (domain.StageInput, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return domain.StageInput{}, fmt.Errorf("failed to read input %s: %w", path, err)
	}
	var in domain.StageInput
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return domain.StageInput{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if err := validation.StageInput(in); err != nil {
		return domain.StageInput{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return in, nil
}

func newCatalogCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Plan catalog commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check that a YAML or JSON catalog loads",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cat, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.out, "%s: %d plans\n", args[0], cat.Len())
			return err
		},
	})
	return cmd
}

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check a YAML configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := application.LoadConfig(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.out, "%s: provider %s, cache %s\n", args[0], cfg.LLM.Provider, cfg.Cache.Backend)
			return err
		},
	})
	return cmd
}
