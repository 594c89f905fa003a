package api

import (
	"time"

	"quire/internal/journal"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult mirrors a preflight check outcome.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// SpoolStatus summarizes the spool directory.
type SpoolStatus struct {
	Dir     string `json:"dir"`
	Partial int    `json:"partial"`
	Final   int    `json:"final"`
}

// BackendStatus summarizes the conversion listener.
type BackendStatus struct {
	Address          string `json:"address"`
	Reachable        bool   `json:"reachable"`
	Detail           string `json:"detail,omitempty"`
	Busy             bool   `json:"busy"`
	RestartAvailable bool   `json:"restart_available"`
}

// DaemonStatus aggregates daemon runtime information for the status method.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	StartedAt      string             `json:"started_at,omitempty"`
	LockFilePath   string             `json:"lock_file_path"`
	LogLevel       string             `json:"log_level"`
	Spool          SpoolStatus        `json:"spool"`
	Backend        BackendStatus      `json:"backend"`
	JournalPath    string             `json:"journal_path,omitempty"`
	JournalEntries int                `json:"journal_entries"`
	Checks         []CheckResult      `json:"checks,omitempty"`
	Dependencies   []DependencyStatus `json:"dependencies"`
}

// HistoryEntry describes one journaled call.
type HistoryEntry struct {
	ID         int64  `json:"id"`
	CallRef    string `json:"call_ref"`
	Method     string `json:"method"`
	Client     string `json:"client,omitempty"`
	InFormat   string `json:"in_format,omitempty"`
	OutFormat  string `json:"out_format,omitempty"`
	Documents  int    `json:"documents"`
	BytesIn    int64  `json:"bytes_in"`
	BytesOut   int64  `json:"bytes_out"`
	Outcome    string `json:"outcome"`
	ErrorKind  string `json:"error_kind,omitempty"`
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
}

// HistoryResult wraps journal entries, newest first.
type HistoryResult struct {
	Entries []HistoryEntry `json:"entries"`
}

// FromJournalEntries converts journal rows into API DTOs.
func FromJournalEntries(entries []journal.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:         e.ID,
			CallRef:    e.CallRef,
			Method:     e.Method,
			Client:     e.Client,
			InFormat:   e.InFormat,
			OutFormat:  e.OutFormat,
			Documents:  e.Documents,
			BytesIn:    e.BytesIn,
			BytesOut:   e.BytesOut,
			Outcome:    string(e.Outcome),
			ErrorKind:  e.ErrorKind,
			StartedAt:  FormatTime(e.StartedAt),
			DurationMS: e.Duration.Milliseconds(),
		})
	}
	return out
}

// FormatTime renders t in the API timestamp format, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses a timestamp produced by FormatTime.
func ParseTime(value string) (time.Time, error) {
	return time.Parse(dateTimeFormat, value)
}
