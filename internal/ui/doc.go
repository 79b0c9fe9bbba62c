// Package ui renders one-shot terminal output for the matrixctl CLI.
//
// Commands print a Header, then either a Result box or a device table. On a
// terminal the output is styled with Lipgloss; when stdout is piped the
// Printer falls back to plain lines.
//
// Logging is controlled separately via MATRIXCTL_LOG_LEVEL. When unset, zap
// is silent and only this package's output is shown.
package ui
