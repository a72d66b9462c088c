package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check new records against a corpus store",
	Long: `Retrieve similar stored entries and ask the language model which of them
conflict with the new records. Nothing is written to either store.`,
	Annotations: engineAnnotation,
}

var checkFeatureCmd = &cobra.Command{
	Use:   "feature",
	Short: "Check new features against stored laws",
	Args:  cobra.NoArgs,
	RunE:  runCheckFeature,
}

var checkLawCmd = &cobra.Command{
	Use:   "law FILE",
	Short: "Check a new law against stored features",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckLaw,
}

var (
	checkJSON    bool
	checkProject projectFiles
)

func init() {
	checkCmd.PersistentFlags().BoolVar(&checkJSON, "json", false, "Print the result as JSON")
	checkProject.register(checkFeatureCmd)

	checkCmd.AddCommand(checkFeatureCmd)
	checkCmd.AddCommand(checkLawCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckFeature(cmd *cobra.Command, _ []string) error {
	if complianceService == nil || recordReader == nil {
		return errors.New("compliance service not configured")
	}

	bundle, err := checkProject.read()
	if err != nil {
		return err
	}
	if len(bundle.Features) == 0 {
		return fmt.Errorf("no features in %s: %w", checkProject.features, domain.ErrInvalidInput)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	result, err := complianceService.CheckFeatures(ctx, bundle)
	if err != nil {
		return fmt.Errorf("check features: %w", err)
	}
	return printResult(cmd, result)
}

func runCheckLaw(cmd *cobra.Command, args []string) error {
	if complianceService == nil || recordReader == nil {
		return errors.New("compliance service not configured")
	}

	laws, err := readLaws(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	result, err := complianceService.CheckLaws(ctx, laws)
	if err != nil {
		return fmt.Errorf("check law: %w", err)
	}
	return printResult(cmd, result)
}

func printResult(cmd *cobra.Command, result *domain.ViolationResult) error {
	if checkJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	writeViolations(cmd.OutOrStdout(), result)
	return nil
}
