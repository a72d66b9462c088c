package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/complyref/internal/adapters/driven/inbox"
	"github.com/custodia-labs/complyref/internal/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch DIR",
	Short: "Ingest record files dropped into a directory",
	Long: `Watches DIR and queues every new record file for ingestion:

  law-*.jsonl       ingested into the law store
  feature-*.jsonl   ingested into the feature store, together with
                    terms-<suffix>.jsonl and compliance-<suffix>.jsonl
                    when they exist

Tasks run one at a time in arrival order and are journaled; see
'complyref tasks'. Ctrl-C stops watching and cancels unfinished tasks.`,
	Args:        cobra.ExactArgs(1),
	Annotations: engineAnnotation,
	RunE:        runWatch,
}

var watchExisting bool

func init() {
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "Also queue files already in the directory")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if complianceService == nil || taskQueue == nil || recordReader == nil {
		return errors.New("compliance service not configured")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	w := inbox.New(args[0], 0)
	defer w.Close()

	if watchExisting {
		existing, err := w.Existing()
		if err != nil {
			return err
		}
		for _, a := range existing {
			if err := queueArrival(ctx, cmd, a); err != nil {
				return err
			}
		}
	}

	arrivals, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Watching %s for law-*.jsonl and feature-*.jsonl files\n", w.Dir())

	for a := range arrivals {
		if err := queueArrival(ctx, cmd, a); err != nil {
			return err
		}
	}
	return nil
}

// queueArrival submits an ingest task for one arrived file. Read and ingest
// errors fail the task, not the watch.
func queueArrival(ctx context.Context, cmd *cobra.Command, a inbox.Arrival) error {
	name := fmt.Sprintf("ingest %s %s", a.Kind, filepath.Base(a.Path))

	var fn func(ctx context.Context) error
	switch a.Kind {
	case inbox.KindLaw:
		fn = func(ctx context.Context) error {
			laws, err := recordReader.ReadLawsFile(a.Path)
			if err != nil {
				return err
			}
			n, err := complianceService.IngestLaws(ctx, laws)
			logger.Info("%s: %d documents", name, n)
			return err
		}
	case inbox.KindFeature:
		fn = func(ctx context.Context) error {
			bundle, err := recordReader.ReadProject(a.Path, a.Terms, a.Compliance)
			if err != nil {
				return err
			}
			n, err := complianceService.IngestFeatures(ctx, bundle)
			logger.Info("%s: %d documents", name, n)
			return err
		}
	default:
		return nil
	}

	task, err := submit(ctx, name, fn)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	cmd.Printf("Queued task %s (%s)\n", task.ID(), name)
	return nil
}
