package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/factcheck/internal/model"
)

// Renderer writes finished reports
type Renderer struct {
	now func() time.Time
}

// NewRenderer creates a renderer
func NewRenderer() *Renderer {
	return &Renderer{now: time.Now}
}

// RenderJSON writes the report record as indented JSON
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	data, err := json.MarshalIndent(model.NewRecord(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the report document as Markdown
func (r *Renderer) RenderMarkdown(report *model.Report, path string) error {
	return writeFile(path, []byte(r.Markdown(report)))
}

// Markdown renders the report document with a title and a generation note
func (r *Renderer) Markdown(report *model.Report) string {
	var b strings.Builder
	b.WriteString("# Fact-Check Report\n\n")
	if report.Claim != nil && report.Claim.ID != "" {
		fmt.Fprintf(&b, "_Claim ID: %s_\n\n", report.Claim.ID)
	}
	b.WriteString(report.String())
	fmt.Fprintf(&b, "\n\n---\n_Generated %s._\n", r.now().UTC().Format(time.RFC3339))
	return b.String()
}

// RenderSummary prints a short verdict line for the terminal
func (r *Renderer) RenderSummary(w io.Writer, report *model.Report) {
	verdict := "undecided"
	if report.Verdict != nil {
		verdict = string(*report.Verdict)
	}

	claim := ""
	if report.Claim != nil {
		claim = model.Truncate(report.Claim.Text, 80)
	}

	_, _ = fmt.Fprintf(w, "Claim:    %s\n", claim)
	_, _ = fmt.Fprintf(w, "Verdict:  %s\n", strings.ToUpper(verdict))
	_, _ = fmt.Fprintf(w, "Actions:  %d (%d useful)\n", len(report.ActionsTaken), len(report.UsefulEvidence()))
	if report.Justification != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", report.Justification)
	}
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
