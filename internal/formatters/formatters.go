package formatters

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"resumereview/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// GlobalRegistry is the registry shared by output handlers
var GlobalRegistry = NewFormatterRegistry()

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	for _, dataType := range []string{"AnalysisResult", "Feedback"} {
		registry.RegisterFormatter("text", dataType, &AnalysisTextFormatter{})
		registry.RegisterFormatter("markdown", dataType, &AnalysisMarkdownFormatter{})
		registry.RegisterFormatter("terminal", dataType, NewTerminalFormatter("", 0))
	}

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats, sorted
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	slices.Sort(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case *types.AnalysisResult, types.AnalysisResult:
		return "AnalysisResult"
	case *types.Feedback, types.Feedback:
		return "Feedback"
	default:
		return "any"
	}
}

// unwrap accepts an analysis or a feedback and returns the analysis plus
// the feedback ID when there is one
func unwrap(data any) (*types.AnalysisResult, string, error) {
	switch v := data.(type) {
	case *types.AnalysisResult:
		if v == nil {
			return nil, "", fmt.Errorf("no analysis to format")
		}
		return v, "", nil
	case types.AnalysisResult:
		return &v, "", nil
	case *types.Feedback:
		if v == nil || v.Analysis == nil {
			return nil, "", fmt.Errorf("no analysis to format")
		}
		return v.Analysis, v.ID, nil
	case types.Feedback:
		if v.Analysis == nil {
			return nil, "", fmt.Errorf("no analysis to format")
		}
		return v.Analysis, v.ID, nil
	default:
		return nil, "", fmt.Errorf("expected AnalysisResult or Feedback, got %T", data)
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// AnalysisTextFormatter renders plain text with === SECTION === headers
type AnalysisTextFormatter struct{}

func (tf *AnalysisTextFormatter) Format(data any) (string, error) {
	result, feedbackID, err := unwrap(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("=== RESUME ANALYSIS ===\n")
	output.WriteString(fmt.Sprintf("Score: %d/100\n", result.Score))
	if feedbackID != "" {
		output.WriteString(fmt.Sprintf("Feedback ID: %s\n", feedbackID))
	}
	if result.Summary != "" {
		output.WriteString("\nSummary:\n")
		output.WriteString(result.Summary)
		output.WriteString("\n")
	}

	writeTextList(&output, "STRENGTHS", result.Strengths)
	writeTextList(&output, "WEAKNESSES", result.Weaknesses)
	writeTextList(&output, "IMPROVEMENT SUGGESTIONS", result.ImprovementSuggestions)

	if len(result.BulletPointRewrites) > 0 {
		output.WriteString("\n=== BULLET POINT REWRITES ===\n")
		for i, rw := range result.BulletPointRewrites {
			output.WriteString(fmt.Sprintf("%d. Before: %s\n", i+1, rw.Before))
			output.WriteString(fmt.Sprintf("   After:  %s\n", rw.After))
			if rw.Explanation != "" {
				output.WriteString(fmt.Sprintf("   Why:    %s\n", rw.Explanation))
			}
		}
	}

	ats := result.ATSAnalysis
	output.WriteString("\n=== ATS ANALYSIS ===\n")
	output.WriteString(fmt.Sprintf("Score: %d/100\n", ats.Score))
	writeTextSubList(&output, "Issues", ats.Issues)
	writeTextSubList(&output, "Missing Keywords", ats.MissingKeywords)
	writeTextSubList(&output, "Format Warnings", ats.FormatWarnings)

	return output.String(), nil
}

func (tf *AnalysisTextFormatter) SupportedType() string {
	return "AnalysisResult"
}

func writeTextList(output *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	output.WriteString(fmt.Sprintf("\n=== %s ===\n", title))
	for _, item := range items {
		output.WriteString("- " + item + "\n")
	}
}

func writeTextSubList(output *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	output.WriteString(fmt.Sprintf("\n%s:\n", title))
	for _, item := range items {
		output.WriteString("- " + item + "\n")
	}
}

// AnalysisMarkdownFormatter renders the analysis as markdown
type AnalysisMarkdownFormatter struct{}

func (mf *AnalysisMarkdownFormatter) Format(data any) (string, error) {
	result, feedbackID, err := unwrap(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("# Resume Analysis\n\n")
	output.WriteString(fmt.Sprintf("**Score:** %d/100\n\n", result.Score))
	if feedbackID != "" {
		output.WriteString(fmt.Sprintf("**Feedback ID:** `%s`\n\n", feedbackID))
	}
	if result.Summary != "" {
		output.WriteString("## Summary\n\n")
		output.WriteString(result.Summary)
		output.WriteString("\n\n")
	}

	writeMarkdownList(&output, "## Strengths", result.Strengths)
	writeMarkdownList(&output, "## Weaknesses", result.Weaknesses)
	writeMarkdownList(&output, "## Improvement Suggestions", result.ImprovementSuggestions)

	if len(result.BulletPointRewrites) > 0 {
		output.WriteString("## Bullet Point Rewrites\n\n")
		for i, rw := range result.BulletPointRewrites {
			output.WriteString(fmt.Sprintf("%d. ~~%s~~\n", i+1, rw.Before))
			output.WriteString(fmt.Sprintf("   **%s**\n", rw.After))
			if rw.Explanation != "" {
				output.WriteString(fmt.Sprintf("   _%s_\n", rw.Explanation))
			}
		}
		output.WriteString("\n")
	}

	ats := result.ATSAnalysis
	output.WriteString("## ATS Analysis\n\n")
	output.WriteString(fmt.Sprintf("**Score:** %d/100\n\n", ats.Score))
	writeMarkdownList(&output, "### Issues", ats.Issues)
	writeMarkdownList(&output, "### Missing Keywords", ats.MissingKeywords)
	writeMarkdownList(&output, "### Format Warnings", ats.FormatWarnings)

	return strings.TrimRight(output.String(), "\n") + "\n", nil
}

func (mf *AnalysisMarkdownFormatter) SupportedType() string {
	return "AnalysisResult"
}

func writeMarkdownList(output *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	output.WriteString(heading + "\n\n")
	for _, item := range items {
		output.WriteString("- " + item + "\n")
	}
	output.WriteString("\n")
}
