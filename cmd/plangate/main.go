package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zen-systems/plangate/pkg/adapter"
	"github.com/zen-systems/plangate/pkg/artifact"
	"github.com/zen-systems/plangate/pkg/config"
	"github.com/zen-systems/plangate/pkg/metrics"
	"github.com/zen-systems/plangate/pkg/pddl"
	"github.com/zen-systems/plangate/pkg/pipeline"
	"github.com/zen-systems/plangate/pkg/planner"
	"github.com/zen-systems/plangate/pkg/prompt"
	"github.com/zen-systems/plangate/pkg/scene"
	"github.com/zen-systems/plangate/pkg/tool"
)

var (
	configFile  string
	adapterFlag string
	modelFlag   string
	logFormat   string
	verbose     bool
	aliases     *config.ModelAliases
	logger      *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "plangate",
		Short: "Robot task planning with LLMs and a classical planner",
		Long: `Plangate turns a household task into a symbolic plan. An LLM interprets
	the goal, decomposes it into subgoals and writes PDDL, which Fast Downward
	solves. Each stage repairs malformed answers before giving up.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ~/.plangate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&adapterFlag, "adapter", "", "override adapter (ollama, anthropic, openai, google, deepseek, mock)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "override model or alias")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(modelsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func setupLogger() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch logFormat {
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", logFormat)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
	return nil
}

func runCmd() *cobra.Command {
	var maxIterations int
	var plannerBudget int
	var manifestFile string
	var metricsFile string
	var noEvidence bool

	cmd := &cobra.Command{
		Use:   "run [task-id]",
		Short: "Plan one task from the dataset",
		Long: `Runs goal interpretation, subgoal decomposition and action sequencing
	for a task. The task id is either an index into the dataset or the file
	name (without extension) of its scene graph and program.

	The plan is printed to stdout. The run fails with a non-zero exit code
	when any stage fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			adapters, err := createAdapters(cfg)
			if err != nil {
				return fmt.Errorf("failed to create adapters: %w", err)
			}
			for _, err := range aliases.ValidateStages(cfg) {
				logger.Warn("model check", "error", err)
			}

			fixtures, err := scene.NewFixtureStore(cfg.Paths.DatasetDir)
			if err != nil {
				return err
			}
			resources, err := scene.LoadResources(cfg.Paths.ResourcesDir)
			if err != nil {
				return err
			}
			prompts, err := prompt.New(cfg.Paths.PromptsDir)
			if err != nil {
				return err
			}

			var manifest *pipeline.Manifest
			if manifestFile != "" {
				manifest, err = pipeline.LoadManifest(manifestFile)
				if err != nil {
					return err
				}
			}

			m := metrics.New()
			invoker, err := newInvoker(cfg, m)
			if err != nil {
				return err
			}

			evidenceDir := cfg.Paths.EvidenceDir
			if noEvidence {
				evidenceDir = ""
			}

			orch, err := pipeline.NewOrchestrator(pipeline.Options{
				Adapters:      adapters,
				Config:        cfg,
				Aliases:       aliases,
				Manifest:      manifest,
				Fixtures:      fixtures,
				Resources:     resources,
				Prompts:       prompts,
				Planner:       invoker,
				PlannerBudget: plannerBudget,
				EvidenceDir:   evidenceDir,
				Logger:        logger,
				Metrics:       m,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Planning task %s with %s/%s\n", args[0], cfg.Model.Adapter, aliases.Resolve(cfg.Model.Model))
			result, err := orch.Run(cmd.Context(), args[0], maxIterations)
			if metricsFile != "" {
				if werr := m.WriteTextfile(metricsFile); werr != nil {
					logger.Warn("failed to write metrics", "path", metricsFile, "error", werr)
				}
			}
			if err != nil {
				return err
			}

			if result.EvidenceDir != "" {
				fmt.Fprintf(os.Stderr, "Evidence: %s\n", result.EvidenceDir)
			}
			if result.Status != pipeline.StatusSuccess {
				return fmt.Errorf("%s failed (%s): %s", result.Stage, result.Reason, result.Message)
			}
			fmt.Println(result.Plan)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iterations per stage (overrides config and manifest)")
	cmd.Flags().IntVar(&plannerBudget, "planner-budget", tool.DefaultPlannerBudget, "planner calls allowed per run")
	cmd.Flags().StringVarP(&manifestFile, "file", "f", "", "pipeline manifest path")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	cmd.Flags().BoolVar(&noEvidence, "no-evidence", false, "do not write an evidence bundle")

	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a PDDL file or a pipeline manifest",
		Long: `Validates without running anything. YAML files are checked as pipeline
	manifests; anything else must hold the domain and problem blocks the
	planning tool accepts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch strings.ToLower(filepath.Ext(args[0])) {
			case ".yaml", ".yml":
				m, err := pipeline.LoadManifest(args[0])
				if err != nil {
					return err
				}
				if err := m.Validate(builtinTools().Names()); err != nil {
					return err
				}
				fmt.Println("Pipeline manifest is valid.")
				return nil
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if _, err := pddl.Parse(string(data)); err != nil {
				return err
			}
			fmt.Println(pddl.DiagnosticOK)
			return nil
		},
	}
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [domain.pddl] [problem.pddl]",
		Short: "Run the planner on a domain and problem",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			domain, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			problem, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			invoker, err := newInvoker(cfg, nil)
			if err != nil {
				return err
			}
			dir := invoker.Dir()
			if _, err := dir.WriteDocuments(string(domain), string(problem)); err != nil {
				return err
			}

			outcome := invoker.Invoke(cmd.Context(), dir.DomainPath(), dir.ProblemPath())
			if outcome.Kind != planner.Success {
				fmt.Fprintln(os.Stderr, outcome.Text())
				return outcome.Err()
			}
			fmt.Println(outcome.Plan)
			return nil
		},
	}
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := builtinTools()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tPARAMETERS\tDESCRIPTION")
			for _, name := range registry.Names() {
				t, _ := registry.Get(name)
				var params []string
				for _, p := range t.Parameters().Params {
					params = append(params, fmt.Sprintf("%s:%s", p.Name, p.Type))
				}
				description := strings.SplitN(t.Description(), "\n", 2)[0]
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, formatList(params), description)
			}
			return w.Flush()
		},
	}
}

func tasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks in the dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			fixtures, err := scene.NewFixtureStore(cfg.Paths.DatasetDir)
			if err != nil {
				return err
			}
			ids, err := fixtures.List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tGRAPH\tTASK")
			for _, id := range ids {
				task, err := fixtures.Load(id)
				if err != nil {
					return err
				}
				title := strings.SplitN(task.Description, "\n", 2)[0]
				fmt.Fprintf(w, "%s\t%s\t%s\n", id, task.GraphFile, title)
			}
			return w.Flush()
		},
	}
}

func modelsCmd() *cobra.Command {
	var resolveFlag bool
	var validateFlag bool

	cmd := &cobra.Command{
		Use:   "models [name...]",
		Short: "List available adapters, models, and aliases",
		Long: `Lists adapters and their available models.

	Use --resolve to show aliases and what they resolve to.
	Use --resolve <name>... to show how specific names are routed.
	Use --validate to check that every stage resolves to a known model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if len(args) > 0 {
				return resolveNames(args)
			}
			if resolveFlag {
				return showAliases()
			}

			if validateFlag {
				return validateAliases(cfg)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODELS\tSTATUS")

			providers := aliases.ListProviders()
			if len(providers) == 0 {
				providers = []string{"anthropic", "deepseek", "google", "ollama", "openai"}
			}
			providers = append(providers, "mock")

			for _, provider := range providers {
				models := formatList(aliases.GetProviderModels(provider))
				status := "no key"
				if cfg.HasAdapter(provider) {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", provider, models, status)
			}

			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&resolveFlag, "resolve", false, "show aliases and what they resolve to")
	cmd.Flags().BoolVar(&validateFlag, "validate", false, "check that every stage resolves to a known model")

	return cmd
}

func showAliases() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tMODEL\tPROVIDER")

	aliasMap := aliases.ListAliases()
	var aliasNames []string
	for name := range aliasMap {
		aliasNames = append(aliasNames, name)
	}
	sort.Strings(aliasNames)

	for _, alias := range aliasNames {
		model := aliasMap[alias]
		provider := aliases.GetProviderForModel(model)
		fmt.Fprintf(w, "%s\t%s\t%s\n", alias, model, provider)
	}

	return w.Flush()
}

func resolveNames(names []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tMODEL\tPROVIDER")

	var unknown []string
	for _, name := range names {
		res := aliases.Lookup(name)
		kind := "model"
		if res.Alias {
			kind = "alias"
		}
		provider := res.Provider
		if provider == "" {
			provider = "-"
			unknown = append(unknown, name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", res.Name, kind, res.Model, provider)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(unknown) > 0 {
		return fmt.Errorf("no provider lists %s", strings.Join(unknown, ", "))
	}
	return nil
}

func validateAliases(cfg *config.Config) error {
	errs := aliases.ValidateStages(cfg)
	if len(errs) == 0 {
		fmt.Println("All stage models are valid.")
		return nil
	}

	fmt.Fprintf(os.Stderr, "Found %d validation errors:\n", len(errs))
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "  - %s\n", err)
	}
	return fmt.Errorf("validation failed")
}

func formatList(items []string) string {
	return strings.Join(items, ", ")
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if adapterFlag != "" {
		cfg.Model.Adapter = adapterFlag
	}
	if modelFlag != "" {
		cfg.Model.Model = modelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	aliases, _ = config.LoadAliasesWithFallback("configs/models.yaml")
	if aliases == nil || len(aliases.ListAliases()) == 0 {
		aliases = config.DefaultAliases()
	}

	return cfg, nil
}

func newInvoker(cfg *config.Config, m *metrics.Metrics) (*planner.Invoker, error) {
	dir, err := artifact.NewDir(cfg.Paths.PlanningDir)
	if err != nil {
		return nil, err
	}
	opts := []planner.Option{planner.WithLogger(logger)}
	if m != nil {
		opts = append(opts, planner.WithRecorder(m))
	}
	return planner.NewInvoker(cfg.Planner, dir, opts...)
}

// builtinTools describes the tool set. The planning tool is never called
// through it.
func builtinTools() *tool.Registry {
	registry, err := tool.NewRegistry(tool.FindObject{}, tool.GetRelations{}, tool.NewPlanFromPDDL(nil, nil, nil))
	if err != nil {
		panic(err)
	}
	return registry
}

func createAdapters(cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters["openai"] = a
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters["google"] = a
	}

	if cfg.DeepSeekAPIKey != "" {
		a, err := adapter.NewDeepSeekAdapter(cfg.DeepSeekAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek adapter: %w", err)
		}
		adapters["deepseek"] = a
	}

	ollama, err := adapter.NewOllamaAdapter(cfg.OllamaHost)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama adapter: %w", err)
	}
	adapters["ollama"] = ollama

	adapters["mock"] = adapter.NewMockAdapter()

	return adapters, nil
}
