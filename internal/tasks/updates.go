package tasks

import (
	"fmt"

	"github.com/desertthunder/flx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchRows Phase = iota
	ResolveTitles
	FetchDetails
	ExportLists
)

func (p Phase) String() string {
	switch p {
	case FetchRows:
		return "fetch_rows"
	case ResolveTitles:
		return "resolve_titles"
	case FetchDetails:
		return "fetch_details"
	case ExportLists:
		return "export_lists"
	default:
		return ""
	}
}

func fetchingRowsUpdate(total int, page string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchRows,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Fetching %s rows...", page),
	}
}

func rowUpdate(step, total int, row Row) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] %s (%d titles)", step, total, row.Name, len(row.Titles))
	if row.Err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, row.Name, row.Err)
	}
	return ProgressUpdate{
		Phase:   FetchRows,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    row,
	}
}

func resolvingTitlesUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTitles,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Resolving %d titles...", total),
	}
}

func resolvedTitleUpdate(step, total int, entry models.ListEntry) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTitles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, entry.DisplayName()),
		Data:    entry,
	}
}

func fetchingDetailsUpdate(key models.Key) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchDetails,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching details for %s...", key),
	}
}

func exportingListUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportLists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportLists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportLists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
