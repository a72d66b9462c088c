package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driving"
)

var ingestCmd = &cobra.Command{
	Use:         "ingest",
	Short:       "Ingest records into a corpus store",
	Long:        `Embed NDJSON records and add them to the law or feature store.`,
	Annotations: engineAnnotation,
}

var ingestLawsCmd = &cobra.Command{
	Use:   "laws FILE...",
	Short: "Ingest law provisions",
	Long: `Reads NDJSON law files and adds every provision to the law store.

Each line is either one flat provision or a law document carrying a
"provisions" array, which is flattened into one record per provision.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngestLaws,
}

var ingestFeaturesCmd = &cobra.Command{
	Use:   "features",
	Short: "Ingest a project's features",
	Long: `Reads a project bundle and adds every feature to the feature store.
Terms and compliance rules are rendered into each feature document.`,
	Args: cobra.NoArgs,
	RunE: runIngestFeatures,
}

// projectFiles holds the project bundle flags shared by several commands.
type projectFiles struct {
	features   string
	terms      string
	compliance string
}

func (p *projectFiles) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.features, "features", "", "Features NDJSON file (required)")
	cmd.Flags().StringVar(&p.terms, "terms", "", "Terms NDJSON file")
	cmd.Flags().StringVar(&p.compliance, "compliance", "", "Compliance rules NDJSON file")
	_ = cmd.MarkFlagRequired("features")
}

func (p *projectFiles) read() (domain.ProjectBundle, error) {
	return recordReader.ReadProject(p.features, p.terms, p.compliance)
}

var (
	ingestAsync   bool
	ingestProject projectFiles
)

func init() {
	ingestCmd.PersistentFlags().BoolVar(&ingestAsync, "async", false, "Submit to the task queue and wait for it")
	ingestProject.register(ingestFeaturesCmd)

	ingestCmd.AddCommand(ingestLawsCmd)
	ingestCmd.AddCommand(ingestFeaturesCmd)
	rootCmd.AddCommand(ingestCmd)
}

func runIngestLaws(cmd *cobra.Command, args []string) error {
	if complianceService == nil || recordReader == nil {
		return errors.New("compliance service not configured")
	}

	laws, err := readLaws(args)
	if err != nil {
		return err
	}

	name := "ingest laws " + baseNames(args)
	return ingest(cmd, name, func(ctx context.Context) (int, error) {
		return complianceService.IngestLaws(ctx, laws)
	})
}

func runIngestFeatures(cmd *cobra.Command, _ []string) error {
	if complianceService == nil || recordReader == nil {
		return errors.New("compliance service not configured")
	}

	bundle, err := ingestProject.read()
	if err != nil {
		return err
	}

	name := "ingest features " + filepath.Base(ingestProject.features)
	return ingest(cmd, name, func(ctx context.Context) (int, error) {
		return complianceService.IngestFeatures(ctx, bundle)
	})
}

// ingest runs fn in the foreground, or through the task queue with --async.
func ingest(cmd *cobra.Command, name string, fn func(ctx context.Context) (int, error)) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if !ingestAsync {
		n, err := fn(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		cmd.Printf("Ingested %d documents.\n", n)
		return nil
	}

	if taskQueue == nil {
		return errors.New("task queue not configured")
	}

	var n int
	task, err := submit(ctx, name, func(ctx context.Context) error {
		var err error
		n, err = fn(ctx)
		return err
	})
	if err != nil {
		return err
	}
	cmd.Printf("Queued task %s (%s)\n", task.ID(), name)

	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("task %s: %w", task.ID(), err)
	}
	cmd.Printf("Task %s %s: ingested %d documents.\n", task.ID(), task.State(), n)
	return nil
}

func submit(ctx context.Context, name string, fn driving.TaskFunc) (driving.Task, error) {
	task, err := taskQueue.Submit(ctx, name, fn)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", name, err)
	}
	return task, nil
}

func readLaws(paths []string) ([]domain.LawRecord, error) {
	var laws []domain.LawRecord
	for _, path := range paths {
		batch, err := recordReader.ReadLawsFile(path)
		if err != nil {
			return nil, err
		}
		laws = append(laws, batch...)
	}
	if len(laws) == 0 {
		return nil, fmt.Errorf("no law records in %s: %w", strings.Join(paths, ", "), domain.ErrInvalidInput)
	}
	return laws, nil
}

func baseNames(paths []string) string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return strings.Join(names, ",")
}
