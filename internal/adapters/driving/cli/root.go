// Package cli implements the complyref command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driving"
	"github.com/custodia-labs/complyref/internal/logger"
)

// version is set at build time with -ldflags.
var version = "dev"

// Global flags.
var (
	verbose   bool
	configDir string
	timeout   time.Duration
)

// Services used by commands. Bootstrap sets them before a command runs;
// tests assign them directly.
var (
	complianceService driving.ComplianceService
	taskQueue         driving.TaskQueue
	settingsService   driving.SettingsService
	recordReader      RecordReader
)

// RecordReader reads NDJSON record files.
type RecordReader interface {
	ReadLawsFile(path string) ([]domain.LawRecord, error)
	ReadProject(featuresPath, termsPath, compliancePath string) (domain.ProjectBundle, error)
}

// Services holds what a command needs. Close releases stores and providers.
type Services struct {
	Compliance driving.ComplianceService
	Tasks      driving.TaskQueue
	Settings   driving.SettingsService
	Records    RecordReader
	Warnings   []string
	Close      func() error
}

// Options are the global flag values passed to a Bootstrap.
type Options struct {
	ConfigDir string

	// Engine is false for commands that only touch settings. The corpus
	// stores and AI providers are not opened for those.
	Engine bool

	// InsertOnUncertain forces the update fallback on for this run.
	InsertOnUncertain bool
}

// Bootstrap builds the services for one invocation.
type Bootstrap func(ctx context.Context, opts Options) (*Services, error)

var (
	bootstrap     Bootstrap
	closeServices func() error
)

// Command annotations selecting what Bootstrap opens.
const (
	needsKey      = "needs"
	needsEngine   = "engine"
	needsNothing  = "nothing"
	needsSettings = "settings"
)

var engineAnnotation = map[string]string{needsKey: needsEngine}

var rootCmd = &cobra.Command{
	Use:   "complyref",
	Short: "Cross-reference laws and product features",
	Long: `complyref keeps two similarity-indexed stores, one of law provisions and
one of product features, and asks a language model which stored entries a
new feature violates or a new law impacts.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Print pipeline progress and raw model output")
	flags.StringVar(&configDir, "config-dir", "", "Configuration directory (default ~/.complyref)")
	flags.DurationVar(&timeout, "timeout", 0, "Abort the command after this long (0 disables)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command with args and returns the process exit code.
// Failures are written to stderr as a user-facing explanation.
func Execute(ctx context.Context, b Bootstrap, args []string) int {
	bootstrap = b
	defer shutdown()

	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprint(rootCmd.ErrOrStderr(), describeError(err, verbose))
		return 1
	}
	return 0
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	needs := requirement(cmd)
	if bootstrap == nil || needs == needsNothing {
		return nil
	}
	if needs == needsSettings && settingsService != nil {
		return nil
	}
	if needs == needsEngine && complianceService != nil {
		return nil
	}

	svc, err := bootstrap(cmd.Context(), Options{
		ConfigDir:         configDir,
		Engine:            needs == needsEngine,
		InsertOnUncertain: updateInsertOnUncertain,
	})
	if err != nil {
		return err
	}

	complianceService = svc.Compliance
	taskQueue = svc.Tasks
	settingsService = svc.Settings
	recordReader = svc.Records
	closeServices = svc.Close
	for _, w := range svc.Warnings {
		logger.Warn("%s", w)
	}
	return nil
}

func shutdown() {
	if closeServices == nil {
		return
	}
	if err := closeServices(); err != nil {
		logger.Error("close: %v", err)
	}
	closeServices = nil
}

// requirement returns the nearest needs annotation, defaulting to settings.
func requirement(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		if v, ok := c.Annotations[needsKey]; ok {
			return v
		}
	}
	return needsSettings
}

// commandContext applies the --timeout flag to the command's context.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// describeError turns a command failure into a message for the user.
// Analysis and provider failures get a degraded-result explanation.
func describeError(err error, showRaw bool) string {
	var (
		analysis *domain.AnalysisFailure
		provider *domain.ProviderError
		corrupt  *domain.StoreCorruptError
	)

	switch {
	case errors.As(err, &analysis):
		msg := fmt.Sprintf("Analysis failed: %s\nNo store was changed. Re-run the command to retry.\n", analysis.Reason)
		if showRaw && analysis.Raw != "" {
			msg += "\nRaw model response:\n" + analysis.Raw + "\n"
		} else if analysis.Raw != "" {
			msg += "Run with --verbose to see the raw model response.\n"
		}
		return msg

	case errors.As(err, &provider):
		msg := fmt.Sprintf("The %s provider failed during %s: %v\n", provider.Provider, provider.Op, provider.Err)
		if errors.Is(err, domain.ErrRateLimited) {
			msg += "The provider is rate limiting requests. Wait and retry, or lower embedding.requests_per_minute.\n"
		}
		return msg

	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out. The outcome is unknown, so re-run the whole command.\n"

	case errors.Is(err, domain.ErrLLMUnavailable):
		return "No language model is configured. Set llm.provider and its API key with 'complyref settings set'.\n"

	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return fmt.Sprintf("Embeddings are unavailable: %v\nConfigure embedding.provider and its API key with 'complyref settings set'.\n", err)

	case errors.As(err, &corrupt):
		return fmt.Sprintf("Store %s is unusable (%s). Restore it from a backup or remove the directory and re-ingest.\n",
			corrupt.Path, corrupt.Reason)

	default:
		return fmt.Sprintf("Error: %v\n", err)
	}
}
