package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"taxonmatch/internal/config"
	"taxonmatch/internal/llm"
	"taxonmatch/internal/logging"
	"taxonmatch/internal/matcher"
	"taxonmatch/internal/session"
	"taxonmatch/internal/taxonomy"
)

var (
	// Global flags
	verbose      bool
	configPath   string
	taxonomyPath string
	apiKey       string
	model        string
	timeout      time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "taxonmatch",
	Short: "taxonmatch - species name resolution against a reference taxonomy",
	Long: `taxonmatch maps free-form species names (common and/or Latin) onto a
fixed reference taxonomy.

Resolution is staged: exact lookup, deterministic heuristic normalization,
then an LLM call that supplies full taxonomic hierarchies for
disambiguation, matched back against the taxonomy at decreasing
specificity (species, genus, family, order, class). When several inputs
collapse onto the same higher-level taxon, all of them are reported
ambiguous rather than guessed at.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		// Flags win over both file and environment.
		if taxonomyPath != "" {
			cfg.Taxonomy.Path = taxonomyPath
		}
		if apiKey != "" {
			cfg.LLM.APIKey = apiKey
		}
		if model != "" {
			cfg.LLM.Model = model
		}
		if cmd.Flags().Changed("timeout") {
			cfg.LLM.Timeout = timeout.String()
		}

		if err := logging.Initialize(cfg.Logging.Dir, verbose || cfg.Logging.Debug, cfg.Logging.Level); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// matchCmd resolves one or more queries given on the command line
var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Resolve semicolon-delimited species queries",
	Long: `Resolves one or more species queries against the reference taxonomy.

Each query is one input line: a common name, a Latin name, or a
"Common, Latin" pair. Separate multiple queries with semicolons; they are
resolved as one batch, so shared higher-level matches are arbitrated
across all of them.

Example:
  taxonmatch match --query "brown creeper; three-toed woodpecker" --location "northern Minnesota"`,
	RunE: runMatch,
}

// batchCmd resolves a line-oriented input file and writes CSV
var batchCmd = &cobra.Command{
	Use:   "batch [input-file]",
	Short: "Resolve an input file and write CSV results",
	Long: `Reads species queries from a file, one per line, resolves them as a
single batch, and writes the results as CSV with one record per input
line (columns: raw_input, common_name, latin_name, matched_level,
status, locked).`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// modelsCmd lists the provider's generation-capable models
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available LLM models",
	Long: `Queries the provider for available models and lists the ones usable
for disambiguation. Useful when a configured model name is rejected.`,
	RunE: runModels,
}

var (
	queryString string
	location    string
	outputPath  string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "taxonmatch.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&taxonomyPath, "taxonomy", "", "Taxonomy file path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY env)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "LLM model name (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "LLM call timeout")

	matchCmd.Flags().StringVarP(&queryString, "query", "q", "", "Semicolon-delimited species queries (required)")
	matchCmd.Flags().StringVarP(&location, "location", "l", "", "Study area or location context for the LLM")
	matchCmd.MarkFlagRequired("query")

	batchCmd.Flags().StringVarP(&location, "location", "l", "", "Study area or location context for the LLM")
	batchCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output CSV file (default: stdout)")

	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(modelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()
	return ctx, cancel
}

// buildEngine loads the taxonomy and wires the resolution engine. The
// returned client is nil when no API key is configured; resolution then
// stops after the heuristic stage.
func buildEngine() (*matcher.Engine, *llm.Client, error) {
	ix, err := taxonomy.Load(cfg.Taxonomy.Path)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Taxonomy loaded",
		zap.String("path", cfg.Taxonomy.Path),
		zap.Int("entries", ix.Len()))

	client := llm.NewClientWithConfig(llm.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		Timeout:         cfg.GetLLMTimeout(),
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		MaxRetries:      cfg.LLM.MaxRetries,
	})
	var d matcher.Disambiguator
	if client.Available() {
		d = client
	} else {
		logger.Warn("No API key configured; LLM disambiguation disabled")
	}
	return matcher.NewEngine(ix, d, cfg.Matching.Workers), client, nil
}

// runMatch resolves the --query list and prints one block per query.
func runMatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	engine, _, err := buildEngine()
	if err != nil {
		return err
	}

	lines := splitQueries(queryString)
	if len(lines) == 0 {
		return fmt.Errorf("no queries given")
	}

	results := engine.Resolve(ctx, lines, matcher.Options{Location: location})
	for _, r := range results {
		printResult(r)
	}
	return nil
}

// printResult writes one query's outcome to stdout. Verbose mode
// surfaces the parsed query, the raw LLM candidates, and the level the
// match succeeded at.
func printResult(r *matcher.Result) {
	fmt.Printf("%s  [%s]\n", r.Raw, r.Status)

	if verbose {
		fmt.Printf("  parsed: common=%q latin=%q\n", r.Query.Common, r.Query.Latin)
		if r.Suggestion != nil {
			for i, c := range r.Suggestion.Candidates {
				fmt.Printf("  llm candidate %d: class=%s order=%s family=%s genus=%s species=%s (%.2f)\n",
					i+1, c.Class, c.Order, c.Family, c.Genus, c.Species, c.Confidence)
			}
			if r.Suggestion.SuggestedCommon != "" {
				fmt.Printf("  llm suggested common: %s\n", r.Suggestion.SuggestedCommon)
			}
		}
	}

	switch r.Status {
	case matcher.StatusMatched:
		c := r.Candidate
		fmt.Printf("  -> %s (level=%s, source=%s", c.Latin(), c.Level, c.Source)
		if common := c.Common(); common != "" {
			fmt.Printf(", common=%q", common)
		}
		if c.ViaCommon {
			fmt.Printf(", via suggested common name")
		}
		fmt.Println(")")
		if verbose && c.Entry != nil {
			fmt.Printf("  lineage: %s\n", c.Entry.Lineage())
		}
	case matcher.StatusAmbiguous:
		fmt.Printf("  -> taxon %q is claimed by multiple inputs; match it manually\n", r.Contended)
	default:
		if r.Reason != "" {
			fmt.Printf("  -> %s\n", r.Reason)
		}
	}
}

// runBatch resolves an input file through a session and exports CSV.
func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	engine, _, err := buildEngine()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	lines := splitLines(string(data))
	if len(lines) == 0 {
		return fmt.Errorf("input file %s contains no queries", args[0])
	}
	logger.Info("Processing batch", zap.Int("rows", len(lines)))

	mgr := session.NewManager(engine)
	rows := mgr.Process(ctx, lines, session.ProcessOptions{Location: location})

	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return session.WriteCSV(out, rows)
}

// splitQueries breaks a semicolon-delimited query string into trimmed,
// non-empty input lines.
func splitQueries(s string) []string {
	var out []string
	for _, q := range strings.Split(s, ";") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// splitLines breaks file content into trimmed, non-empty input lines.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// runModels lists generation-capable models from the provider.
func runModels(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client := llm.NewClientWithConfig(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.GetLLMTimeout(),
	})
	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d models support disambiguation:\n", len(models))
	for _, m := range models {
		fmt.Printf("  %-40s %s\n", m.Name, m.DisplayName)
	}
	return nil
}
