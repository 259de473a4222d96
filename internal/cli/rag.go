package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/metagen/pkg/agent"
	"github.com/harun/metagen/pkg/rag"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const answerWidth = 80

var (
	ragWatch    bool
	ragSchedule string
	ragLimit    int
	ragSources  bool
)

var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Index and query dataset documents",
	Long: `Index the documents directory into a vector store and answer questions
from it. The store is Postgres with pgvector when PG_URI is set, and a local
sqlite-vec database otherwise.`,
}

var indexDocumentsCmd = &cobra.Command{
	Use:   "index-documents",
	Short: "Index every document in the documents directory",
	Long: `Index every supported document in the documents directory. Unchanged
documents are skipped and deleted ones are removed from the index. With
--watch or --schedule the command keeps running and re-indexes on change or
on the given cron schedule.`,
	Args: cobra.NoArgs,
	RunE: runIndexDocuments,
}

var indexDocumentCmd = &cobra.Command{
	Use:   "index-document FILENAME",
	Short: "Re-index one document",
	Long: `Remove the existing chunks of FILENAME and index it again. FILENAME is
relative to the documents directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexDocument,
}

var queryIndexCmd = &cobra.Command{
	Use:   "query-index QUERY",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueryIndex,
}

func init() {
	indexDocumentsCmd.Flags().BoolVar(&ragWatch, "watch", false, "keep running and re-index documents when they change")
	indexDocumentsCmd.Flags().StringVar(&ragSchedule, "schedule", "", "keep running and re-index on a cron schedule (e.g. \"@every 1h\")")
	queryIndexCmd.Flags().IntVar(&ragLimit, "limit", 5, "number of chunks retrieved for the answer")
	queryIndexCmd.Flags().BoolVar(&ragSources, "sources", false, "print the retrieved chunks after the answer")

	ragCmd.AddCommand(indexDocumentsCmd)
	ragCmd.AddCommand(indexDocumentCmd)
	ragCmd.AddCommand(queryIndexCmd)
	rootCmd.AddCommand(ragCmd)
}

// openIndexer builds the store, the embedder and the indexer. The returned
// close function releases the store.
func openIndexer(ctx context.Context, env *environment) (*rag.Indexer, func(), error) {
	embedder, err := rag.NewOllamaEmbedder(rag.OllamaEmbedderConfig{
		BaseURL:   env.cfg.LLM.BaseURL,
		Model:     env.cfg.RAG.EmbeddingModel,
		Dimension: env.cfg.RAG.EmbeddingDim,
		Timeout:   env.cfg.LLM.Timeout(),
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := rag.NewStore(ctx, env.cfg.RAG, env.log.Component("rag-store"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	indexer, err := rag.NewIndexer(rag.IndexerConfig{
		Root:     env.cfg.RAG.DocumentsDir,
		Store:    store,
		Embedder: embedder,
		Logger:   env.log.Component("rag"),
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	return indexer, func() { _ = store.Close() }, nil
}

func runIndexDocuments(cmd *cobra.Command, args []string) error {
	var sched cron.Schedule
	if ragSchedule != "" {
		var err error
		if sched, err = rag.ParseSchedule(ragSchedule); err != nil {
			return err
		}
	}

	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	indexer, closeStore, err := openIndexer(ctx, env)
	if err != nil {
		return err
	}
	defer closeStore()

	out := cmd.OutOrStdout()
	stats, err := indexer.IndexAll(ctx)
	if err != nil {
		return err
	}
	printIndexStats(out, stats)

	if !ragWatch && sched == nil {
		return nil
	}

	log := env.log.Component("rag")

	if ragWatch {
		watcher, err := rag.NewFileWatcher(indexer.Root(), indexer.Matcher(), log, func(rel string) {
			if err := indexer.Refresh(ctx, rel); err != nil {
				log.Warn().Err(err).Str("file", rel).Msg("Failed to refresh document")
			}
		})
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", indexer.Root(), err)
		}
		defer watcher.Stop()
		blue.Fprintf(out, "Watching %s for changes\n", indexer.Root())
	}

	scheduled := make(chan struct{})
	if sched == nil {
		close(scheduled)
	} else {
		blue.Fprintf(out, "Re-indexing on schedule %q\n", ragSchedule)
		go func() {
			defer close(scheduled)
			rag.RunSchedule(ctx, sched, log, func(ctx context.Context) {
				stats, err := indexer.IndexAll(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("Scheduled index pass failed")
					return
				}
				printIndexStats(out, stats)
			})
		}()
	}

	<-ctx.Done()
	<-scheduled
	return nil
}

func runIndexDocument(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	indexer, closeStore, err := openIndexer(ctx, env)
	if err != nil {
		return err
	}
	defer closeStore()

	start := time.Now()
	chunks, err := indexer.IndexDocument(ctx, args[0])
	if err != nil {
		return err
	}

	green.Fprintf(cmd.OutOrStdout(), "Indexed %s into %d chunks in %.2f seconds\n",
		args[0], chunks, time.Since(start).Seconds())
	return nil
}

func runQueryIndex(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	indexer, closeStore, err := openIndexer(ctx, env)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := agent.NewProvider(env.cfg.LLM)
	if err != nil {
		return err
	}

	start := time.Now()
	matches, err := indexer.Query(ctx, args[0], ragLimit)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		env.log.Warn().Msg("The index is empty; run 'metagen rag index-documents' first")
	}

	answer, err := rag.Answer(ctx, provider, agent.LLMRequest{
		Model:         env.cfg.LLM.Model,
		Temperature:   env.cfg.LLM.Temperature,
		MaxTokens:     env.cfg.LLM.MaxTokens,
		ContextWindow: env.cfg.LLM.ContextWindow,
		Think:         env.cfg.LLM.Thinking,
	}, args[0], matches)
	if err != nil {
		_, msg := agent.Classify(err)
		return errors.New(msg)
	}

	out := cmd.OutOrStdout()
	yellow.Fprintf(out, "Completed request in %.2f seconds\n\n", time.Since(start).Seconds())
	green.Fprintln(out, wrap(answer, answerWidth))

	if ragSources {
		printSources(out, matches)
	}
	return nil
}

func printIndexStats(out io.Writer, stats rag.IndexStats) {
	green.Fprintf(out, "Indexed %d documents (%d chunks), skipped %d unchanged, removed %d, failed %d in %.2f seconds\n",
		stats.Indexed, stats.Chunks, stats.Skipped, stats.Pruned, stats.Failed, stats.Duration.Seconds())
}

func printSources(out io.Writer, matches []rag.Match) {
	fmt.Fprintln(out)
	for _, m := range matches {
		label := m.Path
		if m.Header != "" {
			label += " > " + m.Header
		}
		blue.Fprintf(out, "[%.3f] %s\n", m.Score, label)
	}
}
