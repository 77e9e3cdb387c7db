// Package ui renders arbor's terminal output.
//
// Everything here returns strings; callers decide where to print them.
// Styled output goes through lipgloss, so writing it with lipgloss.Fprint
// downsamples or strips color for the destination terminal.
//
// # Components
//
// Table: column-aligned rows whose cells may already carry ANSI styling.
// Widths are measured on the visible text, so wide runes and escape codes
// do not break alignment.
//
// Session views: SessionTable, SessionDetail, ConflictTable, MergeSummary
// and WorktreeTable turn domain values into tables and key/value blocks.
//
// HighlightDiff: syntax-highlights unified diffs with chroma.
package ui
