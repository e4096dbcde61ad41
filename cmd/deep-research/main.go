package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/app"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

var (
	topic      string
	configPath string
	outDir     string
	overrides  research.Overrides
	verbose    bool
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based deep research agent",
		Long: `deep-research researches a topic by generating web search queries, summarizing the results,
reflecting on knowledge gaps and writing a cited answer.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVarP(&topic, "topic", "t", "", "The research topic")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Optional config file (yaml, json or toml)")
	rootCmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory for the report and sources files")
	rootCmd.Flags().IntVar(&overrides.InitialQueryCount, "initial-queries", 0, "Override the number of initial search queries")
	rootCmd.Flags().IntVar(&overrides.MaxResearchLoops, "max-loops", 0, "Override the maximum number of research loops")
	rootCmd.Flags().IntVar(&overrides.MaxResultsPerQuery, "max-results", 0, "Override the number of results per query")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Setup structured logging
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if !cmd.Flags().Changed("topic") {
		// Interactive Mode
		fmt.Fprint(os.Stderr, "Enter research topic: ")
		input, err := readTopic(os.Stdin)
		if err != nil {
			return err
		}
		topic = input
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return research.ErrEmptyTopic
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newEngine, err := app.NewEngineFactory(ctx, cfg, logger)
	if err != nil {
		logger.Error("Error initializing engine", "error", err)
		return err
	}
	engine, err := newEngine(research.WithEventHandler(func(ev research.Event) {
		logger.Info("Research progress", "stage", ev.Stage, "loop", ev.Loop, "summaries", ev.Summaries, "sources", ev.Sources)
	}))
	if err != nil {
		return err
	}

	slog.Info("Starting research", "topic", topic)
	res, err := engine.Run(ctx, topic, overrides)
	if err != nil {
		logger.Error("Error running research", "error", err)
		return err
	}

	reportPath, sourcesPath, err := writeOutputs(outDir, time.Now(), res)
	if err != nil {
		return err
	}
	fmt.Println(res.Answer)
	slog.Info("Research complete", "loops", res.Loops, "sources", len(res.Sources), "report", reportPath, "sources_file", sourcesPath)
	return nil
}

// readTopic reads one line. Input ending without a newline is accepted.
func readTopic(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read topic: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// writeOutputs saves the answer as markdown with a numbered reference list
// and the cited sources as JSON.
func writeOutputs(dir string, now time.Time, res *research.Result) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var b strings.Builder
	b.WriteString(res.Answer)
	b.WriteString("\n")
	if len(res.Sources) > 0 {
		b.WriteString("\n## Sources\n\n")
		for i, src := range res.Sources {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, src.Title, src.URL)
		}
	}

	reportPath := filepath.Join(dir, fmt.Sprintf("report_%d.md", now.Unix()))
	if err := os.WriteFile(reportPath, []byte(b.String()), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write report: %w", err)
	}

	data, err := json.MarshalIndent(res.Sources, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to encode sources: %w", err)
	}
	sourcesPath := filepath.Join(dir, "sources.json")
	if err := os.WriteFile(sourcesPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write sources: %w", err)
	}
	return reportPath, sourcesPath, nil
}
