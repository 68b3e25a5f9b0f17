// Package report renders a summary of a cleaning run.
//
// Writers exist for three formats:
//   - JSONWriter: structured output for scripts and the API
//   - YAMLWriter: the same structure in YAML
//   - MarkdownWriter: a readable document with a per-column escape table
//
// All writers take a *Summary, built from a core.Run with FromRun, so the
// web and CLI shells produce identical reports.
package report
