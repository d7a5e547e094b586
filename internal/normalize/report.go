package normalize

import (
	"fmt"

	"github.com/trashdetect/perception/internal/monitoring"
)

// Issue is a per-image inconsistency found while converting a collection.
type Issue struct {
	Image  string `json:"image"`
	Reason string `json:"reason"`
}

// Report summarises one converted collection.
type Report struct {
	Collection string  `json:"collection"`
	Kind       Kind    `json:"kind"`
	Images     int     `json:"images"`
	Labels     int     `json:"labels"`
	Skipped    int     `json:"skipped"`
	Unlabelled int     `json:"unlabelled"`
	Issues     []Issue `json:"issues,omitempty"`
}

// skip records that image was not written and why.
func (r *Report) skip(image, format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	r.Skipped++
	r.Issues = append(r.Issues, Issue{Image: image, Reason: reason})
	monitoring.Logf("normalize: warning: %s: %s: %s", r.Collection, image, reason)
}

// note records an issue for an image that was still written.
func (r *Report) note(image, format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	r.Issues = append(r.Issues, Issue{Image: image, Reason: reason})
	monitoring.Logf("normalize: warning: %s: %s: %s", r.Collection, image, reason)
}
