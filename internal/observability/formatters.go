// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/idea-workbench/internal/workflow"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintState outputs a human-readable summary of the current project state.
func (p *Printer) PrintState(state *workflow.State) {
	if state == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:    %s\n", state.Title))
	sb.WriteString(fmt.Sprintf("Position: %s\n", state.Position))
	sb.WriteString(fmt.Sprintf("Status:   %s", state.Status))
	if state.SubState != workflow.SubStateNone {
		sb.WriteString(fmt.Sprintf("\nDialogue: %s", state.SubState))
	}
	if state.DiagramURL != "" {
		sb.WriteString(fmt.Sprintf("\nDiagram:  %s", state.DiagramURL))
	}

	p.printBox("PROJECT STATE", sb.String())
}

// PrintClassification outputs the stored classification annotation.
func (p *Printer) PrintClassification(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}

	var annotation struct {
		Classification string  `json:"classification"`
		Confidence     float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &annotation); err != nil || annotation.Classification == "" {
		return
	}

	content := fmt.Sprintf("Category:   %s\nConfidence: %.2f",
		annotation.Classification, annotation.Confidence)
	p.printBox("IDEA CLASSIFICATION", content)
}

// PrintOpenQuestions outputs the clarification questions awaiting answers.
func (p *Printer) PrintOpenQuestions(questions []workflow.QuestionAnswer) {
	if len(questions) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d questions open:\n\n", len(questions)))

	count := min(len(questions), maxItemsToShow)
	for i := 0; i < count; i++ {
		q := questions[i].Question
		if len(q) > 50 {
			q = q[:47] + "..."
		}
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, q))
	}
	if len(questions) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more", len(questions)-maxItemsToShow))
	}

	p.printBox("CLARIFICATION QUESTIONS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStageOutput outputs a compact field-by-field view of one stage's
// stored payload. Nested values are rendered as compact JSON.
func (p *Printer) PrintStageOutput(stage workflow.Stage, payload json.RawMessage) {
	if len(payload) == 0 {
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || len(fields) == 0 {
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, key := range keys {
		value := fieldText(fields[key])
		if len(value) > 45 {
			value = value[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("%s: %s", key, value))
		if i < len(keys)-1 {
			sb.WriteString("\n")
		}
	}

	title := fmt.Sprintf("STAGE OUTPUT: %s", strings.ToUpper(string(stage)))
	p.printBox(title, sb.String())
}

// PrintCompletion outputs the final state once the pipeline finishes.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintCompletion(state *workflow.State) {
	if state == nil {
		return
	}

	if state.Status != "completed" {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "⚠ PIPELINE DID NOT COMPLETE")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString("✅ All stages recorded\n\n")
	sb.WriteString(fmt.Sprintf("Title:   %s\n", state.Title))
	sb.WriteString(fmt.Sprintf("Project: %s", state.ProjectID))
	if state.DiagramURL != "" {
		sb.WriteString(fmt.Sprintf("\nDiagram: %s", state.DiagramURL))
	}

	p.printBox("WORKFLOW COMPLETE", sb.String())
}

// fieldText renders a JSON value for single-line display: unquoted strings,
// compact JSON for everything else.
func fieldText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
