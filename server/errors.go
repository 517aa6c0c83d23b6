package server

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"path/filepath"
	"strings"

	perrors "github.com/puglite/puglite/pkg/puglite/errors"
)

// DevError holds information about an error to display in dev mode.
type DevError struct {
	Code    string   // Error taxonomy entry, e.g. "ParseError"
	ID      string   // Catalog id, e.g. "PARSE-0003"
	File    string   // Template path relative to the template root
	Line    int      // Line number (0 if unknown)
	Column  int      // Column number (0 if unknown)
	Message string   // Error message
	Hints   []string // Suggestions for fixing the error
	Source  []SourceLine
}

// SourceLine represents a line of source code for display.
type SourceLine struct {
	Number  int
	Content string
	IsError bool
}

// FromError creates a DevError from a compile or render error.
func FromError(err error) *DevError {
	var pe *perrors.PugliteError
	if !errors.As(err, &pe) {
		return &DevError{Code: "Error", Message: err.Error()}
	}
	return &DevError{
		Code:    string(pe.Code),
		ID:      pe.ID,
		File:    pe.Filename,
		Line:    pe.Line,
		Column:  pe.Column,
		Message: pe.Message,
		Hints:   pe.Hints,
		Source:  sourceContext(pe.Source(), pe.Line, 5),
	}
}

// sourceContext returns the lines around errorLine.
func sourceContext(src string, errorLine, contextLines int) []SourceLine {
	if src == "" || errorLine <= 0 {
		return nil
	}
	all := strings.Split(src, "\n")
	start := max(errorLine-contextLines, 1)
	end := min(errorLine+contextLines, len(all))

	var lines []SourceLine
	for n := start; n <= end; n++ {
		lines = append(lines, SourceLine{
			Number:  n,
			Content: strings.TrimRight(all[n-1], "\r"),
			IsError: n == errorLine,
		})
	}
	return lines
}

// errorPageStyles contains the inline CSS for the error and 404 pages.
const errorPageStyles = `
<style>
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    background: #1a1a2e;
    color: #eee;
    min-height: 100vh;
    padding: 2rem;
  }
  .error-container { max-width: 900px; margin: 0 auto; }
  h1 { font-size: 1.5rem; margin-bottom: 1.5rem; color: #ff6b6b; }
  .error-type {
    display: inline-block;
    background: #ff6b6b;
    color: #1a1a2e;
    padding: 0.2rem 0.5rem;
    border-radius: 4px;
    font-size: 0.75rem;
    font-weight: 600;
    margin-right: 0.5rem;
  }
  .error-location, .error-message, .error-hint {
    background: #16213e;
    border-radius: 8px;
    padding: 1rem 1.25rem;
    margin-bottom: 1rem;
    border-left: 4px solid #ff6b6b;
  }
  .file-path {
    color: #7f8c8d;
    font-family: 'SF Mono', Monaco, 'Courier New', monospace;
    font-size: 0.875rem;
    word-break: break-all;
  }
  .line-info { color: #f39c12; font-weight: 600; }
  .error-message {
    font-family: 'SF Mono', Monaco, 'Courier New', monospace;
    font-size: 0.9rem;
    line-height: 1.6;
    color: #ff6b6b;
    white-space: pre-wrap;
  }
  .error-hint { background: #1a3a1a; color: #98c379; border-left-color: #98c379; }
  .hint-row { font-family: 'SF Mono', Monaco, 'Courier New', monospace; }
  .source-code { background: #0f0f23; border-radius: 8px; overflow: hidden; }
  .source-header {
    background: #16213e;
    padding: 0.75rem 1rem;
    font-size: 0.8rem;
    color: #7f8c8d;
  }
  .source-lines { padding: 1rem 0; overflow-x: auto; }
  .source-line {
    display: flex;
    font-family: 'SF Mono', Monaco, 'Courier New', monospace;
    font-size: 0.875rem;
    line-height: 1.6;
  }
  .source-line.error-line { background: rgba(255, 107, 107, 0.15); }
  .line-number {
    width: 4rem;
    text-align: right;
    padding-right: 1rem;
    color: #4a4a6a;
    user-select: none;
  }
  .error-line .line-number { color: #ff6b6b; }
  .line-content { flex: 1; white-space: pre; padding-right: 1rem; }
  .footer {
    margin-top: 2rem;
    padding-top: 1rem;
    border-top: 1px solid #2d2d44;
    font-size: 0.8rem;
    color: #5c6370;
  }
</style>
`

// renderDevErrorPage writes an HTML error page for a failed template.
func renderDevErrorPage(w http.ResponseWriter, devErr *DevError) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusInternalServerError)

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	sb.WriteString("<meta charset=\"utf-8\">\n")
	sb.WriteString("<title>Error - puglite</title>\n")
	sb.WriteString(errorPageStyles)
	sb.WriteString("</head>\n<body>\n")
	sb.WriteString("<div class=\"error-container\">\n")
	sb.WriteString("<h1>Template Error</h1>\n")

	sb.WriteString("<div class=\"error-location\">\n")
	sb.WriteString(fmt.Sprintf("<span class=\"error-type\">%s</span>\n", html.EscapeString(devErr.Code)))
	if devErr.File != "" {
		sb.WriteString("<span class=\"file-path\">")
		sb.WriteString(html.EscapeString(filepath.ToSlash(devErr.File)))
		if devErr.Line > 0 {
			sb.WriteString(fmt.Sprintf(" : <span class=\"line-info\">%d</span>", devErr.Line))
			if devErr.Column > 0 {
				sb.WriteString(fmt.Sprintf(" : <span class=\"line-info\">%d</span>", devErr.Column))
			}
		}
		sb.WriteString("</span>\n")
	}
	sb.WriteString("</div>\n")

	sb.WriteString("<div class=\"error-message\">")
	sb.WriteString(html.EscapeString(devErr.Message))
	if devErr.ID != "" {
		sb.WriteString(" <span class=\"file-path\">[")
		sb.WriteString(html.EscapeString(devErr.ID))
		sb.WriteString("]</span>")
	}
	sb.WriteString("</div>\n")

	if len(devErr.Hints) > 0 {
		sb.WriteString("<div class=\"error-hint\">\n")
		for _, h := range devErr.Hints {
			sb.WriteString("<div class=\"hint-row\">")
			sb.WriteString(html.EscapeString(h))
			sb.WriteString("</div>\n")
		}
		sb.WriteString("</div>\n")
	}

	if len(devErr.Source) > 0 {
		sb.WriteString("<div class=\"source-code\">\n")
		sb.WriteString("<div class=\"source-header\">Source</div>\n")
		sb.WriteString("<div class=\"source-lines\">\n")
		for _, line := range devErr.Source {
			errorClass := ""
			if line.IsError {
				errorClass = " error-line"
			}
			sb.WriteString(fmt.Sprintf("<div class=\"source-line%s\">", errorClass))
			sb.WriteString(fmt.Sprintf("<span class=\"line-number\">%d</span>", line.Number))
			sb.WriteString("<span class=\"line-content\">")
			sb.WriteString(html.EscapeString(line.Content))
			sb.WriteString("</span></div>\n")
		}
		sb.WriteString("</div>\n</div>\n")
	}

	sb.WriteString("<div class=\"footer\">Fix the error and save; this page reloads automatically.</div>\n")
	sb.WriteString("</div>\n</body>\n</html>")

	w.Write([]byte(sb.String()))
}

// renderDev404Page writes a 404 page listing the files that were tried.
func renderDev404Page(w http.ResponseWriter, requestPath string, checked []string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	sb.WriteString("<meta charset=\"utf-8\">\n")
	sb.WriteString("<title>404 Not Found</title>\n")
	sb.WriteString(errorPageStyles)
	sb.WriteString("</head>\n<body>\n<div class=\"error-container\">\n")
	sb.WriteString("<h1>404 Not Found</h1>\n")
	sb.WriteString("<div class=\"error-location\"><span class=\"file-path\">")
	sb.WriteString(html.EscapeString(requestPath))
	sb.WriteString("</span></div>\n")
	if len(checked) > 0 {
		sb.WriteString("<div class=\"error-hint\">\n")
		for _, p := range checked {
			sb.WriteString("<div class=\"hint-row\">")
			sb.WriteString(html.EscapeString(filepath.ToSlash(p)))
			sb.WriteString("</div>\n")
		}
		sb.WriteString("</div>\n")
	}
	sb.WriteString("<div class=\"footer\">This is a development-only page.</div>\n")
	sb.WriteString("</div>\n</body>\n</html>")

	w.Write([]byte(sb.String()))
}
