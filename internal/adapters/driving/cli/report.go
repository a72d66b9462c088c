package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// Theme colours.
var (
	colourPrimary   = lipgloss.Color("#7C3AED") // Purple
	colourSecondary = lipgloss.Color("#06B6D4") // Cyan
	colourMuted     = lipgloss.Color("#6C7086") // Medium gray
	colourSuccess   = lipgloss.Color("#A6E3A1") // Green
	colourWarning   = lipgloss.Color("#F9E2AF") // Yellow
	colourError     = lipgloss.Color("#F38BA8") // Red
)

// reportStyles styles command reports. The zero value renders plain text.
type reportStyles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Label    lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
}

// stylesFor returns coloured styles when w is a terminal, plain ones otherwise.
func stylesFor(w io.Writer) reportStyles {
	plain := lipgloss.NewStyle()
	styles := reportStyles{
		Title: plain, Subtitle: plain, Label: plain, Muted: plain,
		Success: plain, Warning: plain, Error: plain,
	}
	if !isTerminal(w) {
		return styles
	}

	styles.Title = plain.Bold(true).Foreground(colourPrimary)
	styles.Subtitle = plain.Bold(true).Foreground(colourSecondary)
	styles.Label = plain.Foreground(colourMuted)
	styles.Muted = plain.Foreground(colourMuted)
	styles.Success = plain.Foreground(colourSuccess)
	styles.Warning = plain.Foreground(colourWarning)
	styles.Error = plain.Bold(true).Foreground(colourError)
	return styles
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// titleFields names the item field used as a heading per direction.
var titleFields = map[domain.Direction]string{
	domain.DirectionFeatureToLaw: domain.FieldProvisionTitle,
	domain.DirectionLawToFeature: domain.FieldFeatureTitle,
}

// writeViolations renders a check result as a human-readable report.
func writeViolations(w io.Writer, result *domain.ViolationResult) {
	s := stylesFor(w)

	if result.Empty() {
		fmt.Fprintln(w, s.Success.Render("No violations found."))
		return
	}

	heading := fmt.Sprintf("%d potential violation(s)", len(result.Items))
	if result.Direction == domain.DirectionLawToFeature {
		heading = fmt.Sprintf("%d impacted feature(s)", len(result.Items))
	}
	fmt.Fprintln(w, s.Title.Render(heading))
	fmt.Fprintln(w)

	titleField := titleFields[result.Direction]
	for i, item := range result.Items {
		fmt.Fprintf(w, "%d. %s\n", i+1, s.Subtitle.Render(item.Get(titleField)))
		for _, name := range sortedFields(item, titleField) {
			fmt.Fprintf(w, "   %s %s\n", s.Label.Render(name+":"), item.Fields[name])
		}
		fmt.Fprintf(w, "   %s %s\n\n", s.Warning.Render("reasoning:"), item.Reasoning)
	}
}

func sortedFields(item domain.Violation, skip string) []string {
	names := make([]string, 0, len(item.Fields))
	for name, value := range item.Fields {
		if name == skip || value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeOutcome renders the result of one law update.
func writeOutcome(w io.Writer, outcome *domain.UpdateOutcome) {
	s := stylesFor(w)

	if outcome.Replaced {
		fmt.Fprintf(w, "%s %s replaced %s\n", s.Success.Render("Replaced:"),
			outcome.DocumentID, outcome.Decision.MatchID)
	} else {
		fmt.Fprintf(w, "%s %s\n", s.Success.Render("Inserted:"), outcome.DocumentID)
	}
	fmt.Fprintf(w, "   %s %d  %s %d\n",
		s.Label.Render("candidates:"), outcome.Candidates,
		s.Label.Render("store size:"), outcome.StoreSize)
}

// writeDocument renders one stored document for inspection.
func writeDocument(w io.Writer, doc domain.StoredDocument) {
	s := stylesFor(w)

	fmt.Fprintf(w, "%s %s\n", s.Subtitle.Render(fmt.Sprintf("[%d]", doc.Slot)), doc.ID())
	keys := make([]string, 0, len(doc.Metadata))
	for k := range doc.Metadata {
		if k != domain.FieldID {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "    %s %s\n", s.Label.Render(k+":"), doc.Metadata[k])
	}
	fmt.Fprintf(w, "    %s %s\n\n", s.Label.Render("content:"), truncate(oneLine(doc.Content), 200))
}

// truncate truncates a string to the specified length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
