package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lazypower/engram/internal/config"
	"github.com/lazypower/engram/internal/engine"
	"github.com/lazypower/engram/internal/ingest"
	"github.com/lazypower/engram/internal/llm"
	"github.com/lazypower/engram/internal/store"
)

// buildEngine opens the database and assembles a fully wired engine: scorer
// from config, embedder selection, generative client, query settings, and
// the persisted bundle restored. The caller owns closing the returned DB.
func buildEngine(cfg config.Config) (*engine.Engine, *store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Warn("generative provider not configured, ask disabled", "err", err)
		client = nil
	}

	eng := engine.New(db, client, engine.NewScorer(scoringParams(cfg.Scoring), nil))
	eng.SetEmbedder(selectEmbedder(cfg.LLM))

	if err := eng.SetQuerySettings(engine.QuerySettings{
		Results:   cfg.Query.Results,
		Window:    cfg.Query.Window,
		Threshold: cfg.Query.Threshold,
	}); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("query settings: %w", err)
	}

	if err := eng.Load(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("restore bundle: %w", err)
	}
	return eng, db, nil
}

func scoringParams(sc config.ScoringConfig) engine.Params {
	return engine.Params{
		BaseDecay:         sc.BaseDecay,
		ResonanceFactor:   sc.ResonanceFactor,
		FeedbackWeight:    sc.FeedbackWeight,
		ConceptBoost:      sc.ConceptBoost,
		MultiTurnWeight:   sc.MultiTurnWeight,
		SemanticThreshold: sc.SemanticThreshold,
		SaturationLimit:   sc.SaturationLimit,
	}
}

// selectEmbedder prefers a live Ollama instance and falls back to the local
// hash embedder. Either way the result is wrapped in an embedding cache so
// repeated texts skip recomputation.
func selectEmbedder(cfg config.LLMConfig) engine.Embedder {
	url := cfg.OllamaURL
	if url == "" {
		url = "http://localhost:11434"
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = "nomic-embed-text"
	}

	var inner engine.Embedder
	if engine.ProbeOllama(url, model) {
		inner = engine.NewOllamaEmbedder(url, model, 0)
		log.Debug("embedder selected", "kind", "ollama", "model", model)
	} else {
		inner = engine.NewHashEmbedder(256)
		log.Debug("embedder selected", "kind", "hash", "dims", 256)
	}

	cached, err := engine.NewCachedEmbedder(inner, 0)
	if err != nil {
		log.Warn("embedding cache unavailable", "err", err)
		return inner
	}
	return cached
}

// parseHints turns repeated idx=weight flags into the hint map the scorer
// takes.
func parseHints(raw []string) (map[int]int, error) {
	hints := make(map[int]int, len(raw))
	for _, h := range raw {
		idxStr, weightStr, ok := strings.Cut(h, "=")
		if !ok {
			return nil, fmt.Errorf("hint %q: want idx=weight", h)
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("hint %q: index must be a non-negative integer", h)
		}
		weight, err := strconv.Atoi(weightStr)
		if err != nil {
			return nil, fmt.Errorf("hint %q: weight must be an integer", h)
		}
		hints[idx] = weight
	}
	return hints, nil
}

// --- ingest command ---

var ingestHints []string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Process a document into scored memory",
	Long: "Ingest a text document: split it into sentence units, embed and score\n" +
		"them, and persist the result as the active memory. Replaces any\n" +
		"previously processed document.",
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hints, err := parseHints(ingestHints)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	eng, db, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	doc, err := ingest.PlainText{}.Ingest(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	res, err := eng.ProcessDocument(ctx, doc, hints)
	if err != nil {
		return fmt.Errorf("process: %w", err)
	}

	fmt.Printf("Processed %s: %d units, %d formulas, %d dims in %s\n",
		res.Name, res.Units, res.Formulas, res.Dimensions, res.Duration.Round(time.Millisecond))

	stats := eng.Stats()
	if stats != nil && len(stats.TopUnits) > 0 {
		fmt.Println("\nMost reinforced units:")
		for _, p := range stats.TopUnits {
			fmt.Printf("  [%3d] %.3f  %s\n", p.Index, p.Activation, truncate(p.Text, 80))
		}
	}
	return nil
}

// --- search command ---

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Rank stored units against a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, db, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := eng.Search(ctx, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results. Ingest a document first.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] (act %.2f) #%d %s\n",
			i+1, r.Similarity, r.Activation, r.Index, truncate(r.Text, 120))
	}
	return nil
}

// --- ask command ---

var (
	askResults   int
	askWindow    int
	askThreshold float64
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the stored document",
	Long: "Retrieve the most relevant units for the question, assemble them with\n" +
		"any recorded formula contexts, and stream an answer from the configured\n" +
		"generative provider.",
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.LLM.Provider = "anthropic"
		cfg.LLM.AnthropicKey = key
	}

	eng, db, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Flag overrides apply on top of the configured settings.
	settings := eng.QuerySettings()
	if cmd.Flags().Changed("results") {
		settings.Results = askResults
	}
	if cmd.Flags().Changed("window") {
		settings.Window = askWindow
	}
	if cmd.Flags().Changed("threshold") {
		settings.Threshold = askThreshold
	}
	if err := eng.SetQuerySettings(settings); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := eng.Ask(ctx, question, func(chunk string) {
		fmt.Print(chunk)
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Println()

	fmt.Fprintf(os.Stderr, "\n%s, %d tokens, %d sources\n",
		res.Provider, res.TokensUsed, len(res.Sources))
	return nil
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active memory bundle",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, db, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats := eng.Stats()
	if stats == nil {
		fmt.Println("No document processed yet. Run 'engram ingest <file>' first.")
		return nil
	}

	created := time.UnixMilli(stats.CreatedAt).Format("2006-01-02 15:04")
	fmt.Printf("Document:   %s (%s)\n", stats.Name, stats.BundleID)
	fmt.Printf("Processed:  %s\n", created)
	fmt.Printf("Units:      %d (%d dims, %s embeddings)\n", stats.Units, stats.Dimensions, stats.Model)
	fmt.Printf("Formulas:   %d\n", stats.Formulas)

	if len(stats.TopUnits) > 0 {
		fmt.Println("\nMost reinforced units:")
		for _, p := range stats.TopUnits {
			fmt.Printf("  [%3d] %.3f  %s\n", p.Index, p.Activation, truncate(p.Text, 80))
		}
	}
	return nil
}

// truncate cuts s to max runes. Cutting on runes rather than bytes keeps
// multi-byte characters intact in the printed snippet.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func init() {
	ingestCmd.Flags().StringArrayVar(&ingestHints, "hint", nil, "Importance hint idx=weight (repeatable)")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum number of results (default from settings)")

	askCmd.Flags().IntVar(&askResults, "results", 0, "Results to retrieve for context")
	askCmd.Flags().IntVar(&askWindow, "window", 0, "Neighboring units per hit")
	askCmd.Flags().Float64Var(&askThreshold, "threshold", 0, "Minimum similarity for context")
}
