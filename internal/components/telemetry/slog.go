package telemetry

import (
	"fmt"
	"log/slog"
)

// SlogAPI implements API using the log/slog package.
type SlogAPI struct{}

func (SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		*out = append(
			*out,
			fmt.Sprintf("params.%d", i),
			p,
		)
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	slog.Error("broken component", remainingPairs...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	slog.Warn("warning", remainingPairs...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	remainingPairs := []any{}
	s.formatParams(&remainingPairs, params)
	slog.Debug(message, remainingPairs...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "n", count)
}

// RecordingAPI is an API that keeps every report in memory, it is meant
// for tests that need to assert a component reported something.
type RecordingAPI struct {
	Broken   []string
	Warnings []string
	Debug    []string
	Counts   map[string]int64
}

func NewRecordingAPI() *RecordingAPI {
	return &RecordingAPI{Counts: map[string]int64{}}
}

func (r *RecordingAPI) ReportBroken(id string, params ...any) {
	r.Broken = append(r.Broken, id)
}

func (r *RecordingAPI) ReportWarning(id string, params ...any) {
	r.Warnings = append(r.Warnings, id)
}

func (r *RecordingAPI) ReportDebug(msg string, params ...any) {
	r.Debug = append(r.Debug, msg)
}

func (r *RecordingAPI) ReportCount(id string, count int64) {
	r.Counts[id] = count
}
