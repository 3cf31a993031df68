package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"

	"github.com/spf13/cobra"

	"github.com/scrypster/notouch/internal/config"
	"github.com/scrypster/notouch/internal/extractor"
	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/pkg/types"
)

func newExamplesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples",
		Short: "Inspect or clear persisted training examples",
	}

	var label string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete persisted examples (all labels unless --label is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), func(_ *config.Config, repo storage.ExampleRepository) error {
				return clearExamples(cmd.Context(), cmd.OutOrStdout(), repo, types.Label(label))
			})
		},
	}
	clearCmd.Flags().StringVar(&label, "label", "", "Only delete examples with this label")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show the number of persisted examples per label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), func(_ *config.Config, repo storage.ExampleRepository) error {
				return listExamples(cmd.Context(), cmd.OutOrStdout(), repo)
			})
		},
	}

	var k int
	nearestCmd := &cobra.Command{
		Use:   "nearest",
		Short: "Embed one camera frame and list its nearest persisted examples (postgres with pgvector)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), func(cfg *config.Config, repo storage.ExampleRepository) error {
				fe, _, err := buildExtractor(cfg)
				if err != nil {
					return err
				}
				if k < 1 {
					k = cfg.Classifier.K
				}
				return nearestExamples(cmd.Context(), cmd.OutOrStdout(), repo, buildFrameSource(cfg), fe, k)
			})
		},
	}
	nearestCmd.Flags().IntVar(&k, "k", 0, "Number of neighbors (default: classifier.k)")

	cmd.AddCommand(listCmd, clearCmd, nearestCmd)
	return cmd
}

func withRepository(ctx context.Context, fn func(*config.Config, storage.ExampleRepository) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("Error closing repository: %v", err)
		}
	}()
	return fn(cfg, repo)
}

// labelCounter is implemented by repositories that can count without
// loading embeddings.
type labelCounter interface {
	Count(ctx context.Context) (map[types.Label]int, error)
}

func countExamples(ctx context.Context, repo storage.ExampleRepository) (map[types.Label]int, error) {
	if c, ok := repo.(labelCounter); ok {
		return c.Count(ctx)
	}

	examples, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[types.Label]int)
	for _, ex := range examples {
		counts[ex.Label]++
	}
	return counts, nil
}

func listExamples(ctx context.Context, w io.Writer, repo storage.ExampleRepository) error {
	counts, err := countExamples(ctx, repo)
	if err != nil {
		return fmt.Errorf("failed to count examples: %w", err)
	}
	if len(counts) == 0 {
		fmt.Fprintln(w, "no examples")
		return nil
	}

	labels := make([]types.Label, 0, len(counts))
	total := 0
	for l, n := range counts {
		labels = append(labels, l)
		total += n
	}
	slices.Sort(labels)

	fmt.Fprintf(w, "%-10s %s\n", "LABEL", "EXAMPLES")
	for _, l := range labels {
		fmt.Fprintf(w, "%-10s %d\n", l, counts[l])
	}
	fmt.Fprintf(w, "%-10s %d\n", "total", total)
	return nil
}

func clearExamples(ctx context.Context, w io.Writer, repo storage.ExampleRepository, label types.Label) error {
	counts, err := countExamples(ctx, repo)
	if err != nil {
		return fmt.Errorf("failed to count examples: %w", err)
	}

	removed := 0
	if label == "" {
		for _, n := range counts {
			removed += n
		}
		err = repo.DeleteAll(ctx)
	} else {
		removed = counts[label]
		err = repo.Delete(ctx, label)
	}
	if err != nil {
		return fmt.Errorf("failed to delete examples: %w", err)
	}

	fmt.Fprintf(w, "removed %d examples\n", removed)
	return nil
}

// nearestFinder is implemented by repositories that search neighbors in the
// database itself.
type nearestFinder interface {
	Nearest(ctx context.Context, query types.Embedding, k int) ([]types.Label, error)
}

func nearestExamples(ctx context.Context, w io.Writer, repo storage.ExampleRepository,
	source extractor.FrameSource, fe extractor.FeatureExtractor, k int) error {
	finder, ok := repo.(nearestFinder)
	if !ok {
		return fmt.Errorf("%w: nearest neighbor search needs the postgres storage engine", storage.ErrInvalidInput)
	}

	frame, err := source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire frame: %w", err)
	}
	query, err := fe.Embed(ctx, frame)
	if err != nil {
		return fmt.Errorf("failed to embed frame: %w", err)
	}

	labels, err := finder.Nearest(ctx, query, k)
	if err != nil {
		return fmt.Errorf("nearest neighbor search failed: %w", err)
	}
	if len(labels) == 0 {
		fmt.Fprintln(w, "no examples")
		return nil
	}

	votes := make(map[types.Label]int)
	fmt.Fprintf(w, "%-6s %s\n", "RANK", "LABEL")
	for i, l := range labels {
		votes[l]++
		fmt.Fprintf(w, "%-6d %s\n", i+1, l)
	}

	voted := make([]types.Label, 0, len(votes))
	for l := range votes {
		voted = append(voted, l)
	}
	slices.Sort(voted)
	for _, l := range voted {
		fmt.Fprintf(w, "votes %s: %d/%d\n", l, votes[l], len(labels))
	}
	return nil
}
