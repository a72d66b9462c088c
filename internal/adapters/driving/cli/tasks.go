package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

var tasksCmd = &cobra.Command{
	Use:         "tasks",
	Short:       "Show the ingest task journal",
	Args:        cobra.NoArgs,
	Annotations: engineAnnotation,
	RunE:        runTasks,
}

var tasksLimit int

func init() {
	tasksCmd.Flags().IntVarP(&tasksLimit, "limit", "n", 20, "Show at most this many tasks (0 for all)")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, _ []string) error {
	if taskQueue == nil {
		return errors.New("task queue not configured")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	tasks, err := taskQueue.History(ctx, tasksLimit)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	if len(tasks) == 0 {
		cmd.Println("No tasks recorded.")
		return nil
	}

	s := stylesFor(cmd.OutOrStdout())
	for i := range tasks {
		task := tasks[i]
		cmd.Printf("%s  %s\n", s.Subtitle.Render(shortID(task.ID)), task.Name)
		cmd.Printf("    State:    %s\n", stateStyle(s, task.State).Render(string(task.State)))
		cmd.Printf("    Queued:   %s\n", task.QueuedAt.Format(time.RFC3339))
		if d := task.Duration(); d > 0 {
			cmd.Printf("    Duration: %s\n", d.Round(time.Millisecond))
		}
		if task.Error != "" {
			cmd.Printf("    Error:    %s\n", task.Error)
		}
		cmd.Println()
	}
	return nil
}

func stateStyle(s reportStyles, state domain.TaskState) lipgloss.Style {
	switch state {
	case domain.TaskSucceeded:
		return s.Success
	case domain.TaskFailed:
		return s.Error
	case domain.TaskRunning:
		return s.Warning
	default:
		return s.Muted
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
