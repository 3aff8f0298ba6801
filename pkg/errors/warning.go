package errors

import "fmt"

// WarningKind classifies recoverable problems accumulated during an analysis run.
type WarningKind string

const (
	// WarnFetch marks a repository file that could not be downloaded. The
	// rest of the tree is still fetched.
	WarnFetch WarningKind = "fetch"

	// WarnExtraction marks a manifest that could not be parsed. Other
	// manifests in the same repository are still processed.
	WarnExtraction WarningKind = "extraction"

	// WarnCorrelation marks a vulnerability feed lookup that failed for one
	// package coordinate. Remaining coordinates are still queried.
	WarnCorrelation WarningKind = "correlation"

	// WarnMetadataConflict marks a catalog upsert that observed a different
	// non-empty value for an already-populated dependency attribute.
	WarnMetadataConflict WarningKind = "metadata_conflict"
)

// Warning records a recoverable problem attached to an analysis run.
// Warnings never abort a run; they are reported alongside the eventual
// report (or the failure payload) so callers learn what was skipped.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Subject string      `json:"subject"` // manifest path or package coordinate
	Message string      `json:"message"`
}

// String formats the warning for logs.
func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Kind, w.Subject, w.Message)
}

// Warnf builds a Warning with a formatted message.
func Warnf(kind WarningKind, subject, format string, args ...any) Warning {
	return Warning{Kind: kind, Subject: subject, Message: fmt.Sprintf(format, args...)}
}
