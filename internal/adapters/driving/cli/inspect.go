package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

var inspectCmd = &cobra.Command{
	Use:         "inspect laws|features",
	Short:       "List documents in a corpus store",
	Args:        cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs:   []string{"laws", "features"},
	Annotations: engineAnnotation,
	RunE:        runInspect,
}

var inspectLimit int

func init() {
	inspectCmd.Flags().IntVarP(&inspectLimit, "limit", "n", 0, "Show at most this many documents (0 for all)")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	if complianceService == nil {
		return errors.New("compliance service not configured")
	}

	corpus := domain.CorpusLaw
	if args[0] == "features" {
		corpus = domain.CorpusFeature
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	docs, err := complianceService.Inspect(ctx, corpus, inspectLimit)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", args[0], err)
	}

	if len(docs) == 0 {
		cmd.Printf("The %s store is empty.\n", corpus)
		return nil
	}

	for _, doc := range docs {
		writeDocument(cmd.OutOrStdout(), doc)
	}
	cmd.Printf("Showing %d documents\n", len(docs))
	return nil
}
