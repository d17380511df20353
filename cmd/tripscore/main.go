// Package main provides the CLI entrypoint for tripscore.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/tripscore/internal/config"
	"github.com/verte-zerg/tripscore/internal/evaluator"
	"github.com/verte-zerg/tripscore/internal/mitigation"
	"github.com/verte-zerg/tripscore/internal/model"
	"github.com/verte-zerg/tripscore/internal/ordering"
	"github.com/verte-zerg/tripscore/internal/record"
	"github.com/verte-zerg/tripscore/internal/reportui"
	"github.com/verte-zerg/tripscore/internal/spatial"
	"github.com/verte-zerg/tripscore/internal/stats"
	"github.com/verte-zerg/tripscore/internal/store"
)

const (
	evaluatorRecorded = "recorded"
	evaluatorExec     = "exec"

	defaultHistoryLast = 20
)

var (
	logLevel string
	logger   = slog.Default()

	evalSetType        string
	evalPath           string
	evalEvaluator      string
	evalCommonsenseCmd string
	evalHardCmd        string
	evalWorkers        int
	evalFormat         string
	evalSave           bool
	evalColor          bool

	orderingRef    string
	orderingGen    string
	orderingFormat string
	orderingSave   bool

	spatialRef     string
	spatialGen     string
	spatialPlanKey string
	spatialD0      float64
	spatialLambda  float64
	spatialFormat  string
	spatialSave    bool

	mitigationCSV    string
	mitigationFormat string
	mitigationSave   bool

	historyKind string
	historyLast int

	showFormat string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "tripscore",
		Short:             "Score generated travel itineraries",
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: setupLogging,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (env "+config.EnvLogLevel+")")

	rootCmd.AddCommand(newEvalCmd())
	rootCmd.AddCommand(newOrderingCmd())
	rootCmd.AddCommand(newSpatialCmd())
	rootCmd.AddCommand(newMitigationCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newBrowseCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	level := slog.LevelInfo
	name := logLevel
	if !cmd.Flags().Changed("log-level") {
		name = os.Getenv(config.EnvLogLevel)
	}
	if name = strings.TrimSpace(name); name != "" {
		if err := level.UnmarshalText([]byte(name)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", name, err)
		}
	}
	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Compute constraint pass rates for a plan file",
		Args:  cobra.NoArgs,
		RunE:  runEvalCmd,
	}
	cmd.Flags().StringVar(&evalSetType, "set_type", "", "benchmark split: step, day or plan")
	cmd.Flags().StringVar(&evalPath, "evaluation_file_path", "", "JSONL file with one plan per line")
	cmd.Flags().StringVar(&evalEvaluator, "evaluator", evaluatorRecorded, "constraint source: recorded or exec")
	cmd.Flags().StringVar(&evalCommonsenseCmd, "commonsense-cmd", "", "commonsense evaluator command (exec)")
	cmd.Flags().StringVar(&evalHardCmd, "hard-cmd", "", "hard constraint evaluator command (exec)")
	cmd.Flags().IntVar(&evalWorkers, "workers", 0, "concurrent plan evaluations (default: CPU count)")
	cmd.Flags().StringVar(&evalFormat, "format", stats.FormatText, "report format: text, json or yaml")
	cmd.Flags().BoolVar(&evalSave, "save", false, "store the run in history")
	cmd.Flags().BoolVar(&evalColor, "color", false, "force colored headings")
	return cmd
}

func runEvalCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "set_type", &evalSetType, fileCfg.Eval.SetType)
	applyStringConfig(cmd, "evaluator", &evalEvaluator, fileCfg.Eval.Evaluator)
	applyStringConfig(cmd, "commonsense-cmd", &evalCommonsenseCmd, fileCfg.Eval.CommonsenseCmd)
	applyStringConfig(cmd, "hard-cmd", &evalHardCmd, fileCfg.Eval.HardCmd)
	applyIntConfig(cmd, "workers", &evalWorkers, fileCfg.Eval.Workers)
	applyStringConfig(cmd, "format", &evalFormat, fileCfg.Eval.Format)
	applyBoolConfig(cmd, "save", &evalSave, fileCfg.Eval.Save)

	if evalPath == "" {
		return fmt.Errorf("--evaluation_file_path is required")
	}
	if evalSetType == "" {
		return fmt.Errorf("--set_type is required")
	}
	if evalWorkers < 0 {
		return fmt.Errorf("--workers must be >= 0")
	}
	partition, err := stats.LookupPartition(fileCfg.ApplyPartitions(stats.DefaultPartitions()), evalSetType)
	if err != nil {
		return err
	}

	entries, err := record.Load(evalPath, logger)
	if err != nil {
		return err
	}
	inputs, queries := decodeEntries(entries)

	cs, hard, err := buildEvaluators(inputs)
	if err != nil {
		return err
	}
	adapter := &evaluator.Adapter{Commonsense: cs, Hard: hard, Workers: evalWorkers, Logger: logger}
	results, err := adapter.Run(cmd.Context(), inputs)
	if err != nil {
		return fmt.Errorf("failed to evaluate plans: %w", err)
	}
	res, err := stats.Calculate(results, stats.CountEligibility(queries, logger), partition, logger)
	if err != nil {
		return fmt.Errorf("failed to aggregate outcomes: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := stats.Render(out, res, evalFormat, stats.TextOptions{Color: stats.ShouldUseColor(out, evalColor)}); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if !evalSave {
		return nil
	}
	return withStore(func(st *store.Store) error {
		id, err := st.InsertEvaluation(cmd.Context(), res, absPath(evalPath))
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		logger.Info("saved run", "id", id)
		return nil
	})
}

func decodeEntries(entries []record.Entry) ([]evaluator.Input, []model.Query) {
	inputs := make([]evaluator.Input, len(entries))
	queries := make([]model.Query, 0, len(entries))
	for i, e := range entries {
		rec, err := record.Decode(e.Raw)
		if err != nil {
			inputs[i] = evaluator.Input{Err: fmt.Errorf("line %d: %w", e.Line, err)}
			continue
		}
		inputs[i] = evaluator.Input{Record: rec}
		queries = append(queries, rec.Query)
	}
	return inputs, queries
}

func buildEvaluators(inputs []evaluator.Input) (evaluator.Evaluator, evaluator.Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(evalEvaluator)) {
	case evaluatorRecorded:
		cs, hard := evaluator.RecordedPair(inputs)
		return cs, hard, nil
	case evaluatorExec:
		cs, err := evaluator.NewExec(evaluator.TierCommonsense, evalCommonsenseCmd)
		if err != nil {
			return nil, nil, fmt.Errorf("--commonsense-cmd: %w", err)
		}
		hard, err := evaluator.NewExec(evaluator.TierHard, evalHardCmd)
		if err != nil {
			return nil, nil, fmt.Errorf("--hard-cmd: %w", err)
		}
		return cs, hard, nil
	default:
		return nil, nil, fmt.Errorf("unknown evaluator %q (available: %s, %s)", evalEvaluator, evaluatorRecorded, evaluatorExec)
	}
}

func newOrderingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ordering",
		Short: "Compare visit order of generated plans with reference plans",
		Args:  cobra.NoArgs,
		RunE:  runOrderingCmd,
	}
	cmd.Flags().StringVar(&orderingRef, "reference", "", "JSONL file with reference plans")
	cmd.Flags().StringVar(&orderingGen, "generated", "", "JSONL file with generated plans")
	cmd.Flags().StringVar(&orderingFormat, "format", stats.FormatText, "output format: text, json or yaml")
	cmd.Flags().BoolVar(&orderingSave, "save", false, "store the run in history")
	return cmd
}

func runOrderingCmd(cmd *cobra.Command, _ []string) error {
	if orderingRef == "" || orderingGen == "" {
		return fmt.Errorf("--reference and --generated are required")
	}
	sum, err := ordering.ScoreFiles(orderingRef, orderingGen, logger)
	if err != nil {
		return err
	}
	err = writeResult(cmd.OutOrStdout(), orderingFormat, sum, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Sequential Score Comparison\nNumber of plans evaluated: %d\nAverage Sequential Score: %.4f\n", sum.Plans, sum.Mean)
		return err
	})
	if err != nil || !orderingSave {
		return err
	}
	return saveScore(cmd.Context(), store.KindOrdering, orderingGen, map[string]float64{
		"plans": float64(sum.Plans),
		"mean":  sum.Mean,
	})
}

func newSpatialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spatial",
		Short: "Compare transit proximity of generated plans with reference plans",
		Args:  cobra.NoArgs,
		RunE:  runSpatialCmd,
	}
	cmd.Flags().StringVar(&spatialRef, "reference", "", "JSONL file with reference plans")
	cmd.Flags().StringVar(&spatialGen, "generated", "", "JSONL file with generated plans")
	cmd.Flags().StringVar(&spatialPlanKey, "plan-key", "", "record field nesting the plan, if any")
	cmd.Flags().Float64Var(&spatialD0, "d0", spatial.DefaultD0, "distance in meters where linear decay ends")
	cmd.Flags().Float64Var(&spatialLambda, "lambda", spatial.DefaultLambda, "exponential decay rate per meter")
	cmd.Flags().StringVar(&spatialFormat, "format", stats.FormatText, "output format: text, json or yaml")
	cmd.Flags().BoolVar(&spatialSave, "save", false, "store the run in history")
	return cmd
}

func runSpatialCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "plan-key", &spatialPlanKey, fileCfg.Spatial.PlanKey)
	applyFloatConfig(cmd, "d0", &spatialD0, fileCfg.Spatial.D0)
	applyFloatConfig(cmd, "lambda", &spatialLambda, fileCfg.Spatial.Lambda)

	if spatialRef == "" || spatialGen == "" {
		return fmt.Errorf("--reference and --generated are required")
	}
	if spatialD0 <= 0 {
		return fmt.Errorf("--d0 must be > 0")
	}
	if spatialLambda < 0 {
		return fmt.Errorf("--lambda must be >= 0")
	}
	decay := spatial.Decay{D0: spatialD0, Lambda: spatialLambda}
	res, err := decay.CompareFiles(spatialRef, spatialGen, spatialPlanKey, logger)
	if err != nil {
		return err
	}
	err = writeResult(cmd.OutOrStdout(), spatialFormat, res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Mean Reference Spatial Score: %.4f\nMean Generated Spatial Score: %.4f\nSpatial Adaptability:         %.4f\n",
			res.Reference.Mean, res.Generated.Mean, res.Delta)
		return err
	})
	if err != nil || !spatialSave {
		return err
	}
	return saveScore(cmd.Context(), store.KindSpatial, spatialGen, map[string]float64{
		"reference": res.Reference.Mean,
		"generated": res.Generated.Mean,
		"delta":     res.Delta,
	})
}

func newMitigationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mitigation",
		Short: "Rate how often revised plans change the annotated plans",
		Args:  cobra.NoArgs,
		RunE:  runMitigationCmd,
	}
	cmd.Flags().StringVar(&mitigationCSV, "csv_file", "", "CSV file with annotation_plan and revised_plan columns")
	cmd.Flags().StringVar(&mitigationFormat, "format", stats.FormatText, "output format: text, json or yaml")
	cmd.Flags().BoolVar(&mitigationSave, "save", false, "store the run in history")
	return cmd
}

func runMitigationCmd(cmd *cobra.Command, _ []string) error {
	if mitigationCSV == "" {
		return fmt.Errorf("--csv_file is required")
	}
	sum, err := mitigation.RateCSV(mitigationCSV, logger)
	if err != nil {
		return err
	}
	err = writeResult(cmd.OutOrStdout(), mitigationFormat, sum, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Mitigation rate: %d / %d = %.4f\n", sum.Mitigated, sum.Rows, sum.Rate)
		return err
	})
	if err != nil || !mitigationSave {
		return err
	}
	return saveScore(cmd.Context(), store.KindMitigation, mitigationCSV, map[string]float64{
		"rows":      float64(sum.Rows),
		"mitigated": float64(sum.Mitigated),
		"rate":      sum.Rate,
	})
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyKind, "kind", "", "filter by kind: eval, ordering, spatial, mitigation")
	cmd.Flags().IntVar(&historyLast, "last", defaultHistoryLast, "limit to last N runs (0 for all)")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if historyLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	return withStore(func(st *store.Store) error {
		runs, err := st.ListRuns(cmd.Context(), historyKind, historyLast)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			_, err := fmt.Fprintln(out, "No runs found.")
			return err
		}
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, []string{
				shortID(r.ID),
				r.Kind,
				r.CreatedAt.Local().Format("2006-01-02 15:04"),
				r.SetType,
				headline(r),
				r.Source,
			})
		}
		for _, line := range stats.FormatTable([]string{"ID", "Kind", "When", "Set", "Headline", "Source"}, rows, nil) {
			if _, err := fmt.Fprintln(out, line); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		return nil
	})
}

func headline(r store.Run) string {
	switch r.Kind {
	case store.KindEval:
		return fmt.Sprintf("final %.2f%%", r.Metrics[stats.MetricFinal]*100)
	case store.KindOrdering:
		return fmt.Sprintf("mean %.4f", r.Metrics["mean"])
	case store.KindSpatial:
		return fmt.Sprintf("delta %.4f", r.Metrics["delta"])
	case store.KindMitigation:
		return fmt.Sprintf("rate %.4f", r.Metrics["rate"])
	default:
		return ""
	}
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Print a stored evaluation run",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowCmd,
	}
	cmd.Flags().StringVar(&showFormat, "format", stats.FormatText, "report format: text, json or yaml")
	return cmd
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	return withStore(func(st *store.Store) error {
		_, res, err := st.GetEvaluation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		return stats.Render(out, res, showFormat, stats.TextOptions{Color: stats.ShouldUseColor(out, false)})
	})
}

func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse [RUN_ID]",
		Short: "Browse a stored evaluation run (default: latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBrowseCmd,
	}
}

func runBrowseCmd(cmd *cobra.Command, args []string) error {
	return withStore(func(st *store.Store) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		} else {
			runs, err := st.ListRuns(cmd.Context(), store.KindEval, 1)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(runs) == 0 {
				return fmt.Errorf("no stored evaluations; run tripscore eval --save first")
			}
			id = runs[0].ID
		}
		run, res, err := st.GetEvaluation(cmd.Context(), id)
		if err != nil {
			return err
		}
		program := tea.NewProgram(reportui.NewModel(run, res), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("failed to run report TUI: %w", err)
		}
		return nil
	})
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func withStore(fn func(st *store.Store) error) error {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Error("failed to close db", "error", cerr)
		}
	}()
	return fn(st)
}

func saveScore(ctx context.Context, kind, source string, metrics map[string]float64) error {
	return withStore(func(st *store.Store) error {
		id, err := st.InsertScore(ctx, kind, absPath(source), metrics)
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		logger.Info("saved run", "id", id)
		return nil
	})
}

// writeResult prints v as JSON or YAML, or calls text for the text format.
func writeResult(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch strings.ToLower(format) {
	case "", stats.FormatText:
		return text(w)
	case stats.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case stats.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (available: text, json, yaml)", format)
	}
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# tripscore configuration
# Uncomment a value to enable it. CLI flags override config values.

[eval]
# set-type = "plan"               # Benchmark split: step, day or plan
# evaluator = %q            # recorded or exec
# commonsense-cmd = ""            # Commonsense evaluator command (exec)
# hard-cmd = ""                   # Hard constraint evaluator command (exec)
# workers = 0                     # Concurrent evaluations (0: CPU count)
# format = %q                 # text, json or yaml
# save = false                    # Store every run in history

[spatial]
# d0 = %.1f                    # Meters where linear decay ends
# lambda = %g                 # Exponential decay rate per meter
# plan-key = ""                   # Record field nesting the plan

# Override or add benchmark splits:
# [partitions.day]
# delivery = 295
# commonsense-micro = 2950
# commonsense-macro = 295
# hard-micro = 719
# hard-macro = 295
# final = 307
`,
		evaluatorRecorded,
		stats.FormatText,
		spatial.DefaultD0,
		spatial.DefaultLambda,
	)
}
