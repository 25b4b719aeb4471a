package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"rag-chatbot/internal/helper"
	"rag-chatbot/internal/models"
	"rag-chatbot/internal/rag"
)

func newIngestCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <files...>",
		Short: "Add documents to the vector store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs := make([]models.Document, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("%w: reading %s: %v", models.ErrIngestion, path, err)
				}
				docs = append(docs, models.Document{Filename: filepath.Base(path), Data: data})
			}

			return withPipeline(cmd.Context(), root, func(p *rag.Pipeline) error {
				result, err := p.Ingest(cmd.Context(), docs)
				if err != nil {
					return err
				}
				for _, f := range result.Files {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", f.Filename, f.Chunks)
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Detail)
				return nil
			})
		},
	}
}

const maxTopK = 10

func newAskCmd(root *rootCommander) *cobra.Command {
	var (
		topK   int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if topK < 0 || topK > maxTopK {
				return fmt.Errorf("%w: --top-k must be between 1 and %d", models.ErrInvalidInput, maxTopK)
			}
			question := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			return withPipeline(cmd.Context(), root, func(p *rag.Pipeline) error {
				answer, err := p.Ask(cmd.Context(), models.Query{Text: question, TopK: topK})
				if err != nil {
					return err
				}
				if asJSON {
					fmt.Fprintln(out, helper.PrettyJSON(answer))
					return nil
				}

				log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
				fmt.Fprintf(out, "%s\n\n", question)

				log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
				for _, s := range answer.Sources {
					if s.Page != nil {
						fmt.Fprintf(out, "- %s (page %d)\n", s.Source, *s.Page)
					} else {
						fmt.Fprintf(out, "- %s\n", s.Source)
					}
				}
				fmt.Fprintln(out)

				log.Info().Str("model", answer.UsedModel).Float64("latency_ms", answer.LatencyMS).Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
				fmt.Fprintln(out, answer.Answer)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")

	return cmd
}

// withPipeline builds the pipeline without metrics, runs fn and closes it.
func withPipeline(ctx context.Context, root *rootCommander, fn func(*rag.Pipeline) error) error {
	p, err := rag.Setup(ctx, root.cfg, root.logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			root.logger.Warn().Err(err).Msg("Error closing pipeline")
		}
	}()
	return fn(p)
}
