package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:         "update",
	Short:       "Update stored records",
	Annotations: engineAnnotation,
}

var updateLawCmd = &cobra.Command{
	Use:   "law FILE",
	Short: "Replace superseded laws or insert new ones",
	Long: `For each provision in FILE, search the law store for near-duplicates and
ask the language model which one the provision supersedes. A match is
replaced in place; otherwise the provision is inserted as new.

When the model's answer cannot be used, the command fails and the store is
left unchanged, unless --insert-on-uncertain is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdateLaw,
}

var updateInsertOnUncertain bool

func init() {
	updateLawCmd.Flags().BoolVar(&updateInsertOnUncertain, "insert-on-uncertain", false,
		"Insert as new when the model gives no usable answer")

	updateCmd.AddCommand(updateLawCmd)
	rootCmd.AddCommand(updateCmd)
}

func runUpdateLaw(cmd *cobra.Command, args []string) error {
	if complianceService == nil || recordReader == nil {
		return errors.New("compliance service not configured")
	}

	laws, err := readLaws(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	for i, law := range laws {
		outcome, err := complianceService.UpdateLaw(ctx, law)
		if err != nil {
			if i > 0 {
				cmd.Printf("%d of %d laws were applied before the failure.\n", i, len(laws))
			}
			return fmt.Errorf("update law %s: %w", law.ID, err)
		}
		writeOutcome(cmd.OutOrStdout(), outcome)
	}
	return nil
}
