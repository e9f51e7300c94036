package formatters

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour/v2"
	"github.com/charmbracelet/lipgloss/v2"
)

const (
	defaultTerminalStyle = "dark"
	defaultTerminalWidth = 100
	gaugeWidth           = 20
)

var (
	gaugeLabelStyle = lipgloss.NewStyle().Bold(true)
	gaugeEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	gaugeHighStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	gaugeMidStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	gaugeLowStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	headerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// TerminalFormatter renders the markdown view through glamour beneath a
// score gauge
type TerminalFormatter struct {
	style    string
	width    int
	markdown AnalysisMarkdownFormatter
}

// NewTerminalFormatter creates a terminal formatter. Empty style and zero
// width select the defaults.
func NewTerminalFormatter(style string, width int) *TerminalFormatter {
	if style == "" {
		style = defaultTerminalStyle
	}
	if width <= 0 {
		width = defaultTerminalWidth
	}
	return &TerminalFormatter{style: style, width: width}
}

func (tf *TerminalFormatter) Format(data any) (string, error) {
	result, feedbackID, err := unwrap(data)
	if err != nil {
		return "", err
	}

	md, err := tf.markdown.Format(data)
	if err != nil {
		return "", err
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(tf.style),
		glamour.WithWordWrap(tf.width-4),
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	body, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	lines := []string{
		ScoreGauge("Overall", result.Score),
		ScoreGauge("ATS    ", result.ATSAnalysis.Score),
	}
	if feedbackID != "" {
		lines = append(lines, gaugeEmptyStyle.Render("feedback "+feedbackID))
	}
	header := headerBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))

	return header + "\n" + strings.TrimRight(body, "\n") + "\n", nil
}

func (tf *TerminalFormatter) SupportedType() string {
	return "AnalysisResult"
}

// ScoreGauge renders a 0-100 score as a colored bar
func ScoreGauge(label string, score int) string {
	score = min(max(score, 0), 100)
	filled := score * gaugeWidth / 100

	style := gaugeLowStyle
	switch {
	case score >= 75:
		style = gaugeHighStyle
	case score >= 50:
		style = gaugeMidStyle
	}

	bar := style.Render(strings.Repeat("█", filled)) +
		gaugeEmptyStyle.Render(strings.Repeat("░", gaugeWidth-filled))
	return fmt.Sprintf("%s %s %3d/100", gaugeLabelStyle.Render(label), bar, score)
}
