package normalize

import (
	"fmt"

	"github.com/trashdetect/perception/internal/runlog"
)

// RecordReports stores each report in the run log against outputRoot.
func RecordReports(store *runlog.Store, outputRoot string, reports []*Report) error {
	for _, r := range reports {
		row := runlog.Report{
			Collection: r.Collection,
			Kind:       string(r.Kind),
			OutputRoot: outputRoot,
			Images:     r.Images,
			Labels:     r.Labels,
			Skipped:    r.Skipped,
			Unlabelled: r.Unlabelled,
		}
		for _, is := range r.Issues {
			row.Issues = append(row.Issues, runlog.Issue{Image: is.Image, Reason: is.Reason})
		}
		if _, err := store.RecordReport(row); err != nil {
			return fmt.Errorf("failed to record report for %s: %w", r.Collection, err)
		}
	}
	return nil
}
