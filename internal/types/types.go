package types

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// BulletPointRewrite is a suggested line edit for the resume
type BulletPointRewrite struct {
	Before      string `json:"before"`      // Original bullet as written
	After       string `json:"after"`       // Suggested replacement
	Explanation string `json:"explanation"` // Why the rewrite is stronger
}

// ATSAnalysis represents the applicant tracking system compatibility check
type ATSAnalysis struct {
	Score           int      `json:"score"`           // 0-100 parse-friendliness score
	Issues          []string `json:"issues"`          // Problems an ATS is likely to hit
	MissingKeywords []string `json:"missingKeywords"` // Keywords the resume lacks
	FormatWarnings  []string `json:"formatWarnings"`  // Layout or formatting concerns
}

// AnalysisResult is the structured critique produced by the analysis service
type AnalysisResult struct {
	Score                  int                  `json:"score"` // 0-100 overall quality score
	Summary                string               `json:"summary"`
	Strengths              []string             `json:"strengths"`
	Weaknesses             []string             `json:"weaknesses"`
	ImprovementSuggestions []string             `json:"improvementSuggestions"`
	BulletPointRewrites    []BulletPointRewrite `json:"bulletPointRewrites"`
	ATSAnalysis            ATSAnalysis          `json:"atsAnalysis"`
}

// Normalize replaces missing lists with empty ones, drops null or blank
// entries and clamps scores into [0,100]. Older or newer service versions may
// omit any list.
func (a *AnalysisResult) Normalize() {
	if a == nil {
		return
	}
	a.Score = clampScore(a.Score)
	a.Strengths = compactStrings(a.Strengths)
	a.Weaknesses = compactStrings(a.Weaknesses)
	a.ImprovementSuggestions = compactStrings(a.ImprovementSuggestions)
	a.BulletPointRewrites = compactRewrites(a.BulletPointRewrites)
	a.ATSAnalysis.Score = clampScore(a.ATSAnalysis.Score)
	a.ATSAnalysis.Issues = compactStrings(a.ATSAnalysis.Issues)
	a.ATSAnalysis.MissingKeywords = compactStrings(a.ATSAnalysis.MissingKeywords)
	a.ATSAnalysis.FormatWarnings = compactStrings(a.ATSAnalysis.FormatWarnings)
}

// AnalyzeResponse is the JSON envelope returned by the analysis endpoint
type AnalyzeResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Analysis   *AnalysisResult `json:"analysis,omitempty"`
	FeedbackID string          `json:"feedbackId,omitempty"`
}

// DecodeAnalyzeResponse decodes and normalizes an analysis envelope
func DecodeAnalyzeResponse(r io.Reader) (*AnalyzeResponse, error) {
	var resp AnalyzeResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}
	resp.Analysis.Normalize()
	return &resp, nil
}

// Feedback couples a displayed analysis with the identifier the service needs
// to render its report. Both halves are set and cleared together.
type Feedback struct {
	Analysis *AnalysisResult `json:"analysis"`
	ID       string          `json:"feedbackId"`
}

// Valid reports whether the feedback carries both an analysis and an ID
func (f *Feedback) Valid() bool {
	return f != nil && f.Analysis != nil && f.ID != ""
}

// Feedback extracts the composite value from a successful envelope. It
// returns nil when either half is missing.
func (r *AnalyzeResponse) Feedback() *Feedback {
	if r == nil || r.Analysis == nil || r.ID() == "" {
		return nil
	}
	return &Feedback{Analysis: r.Analysis, ID: r.ID()}
}

// ID returns the feedback identifier
func (r *AnalyzeResponse) ID() string {
	return r.FeedbackID
}

// compactStrings returns s without empty entries; a JSON null element
// decodes to "" and is dropped here
func compactStrings(s []string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// compactRewrites drops rewrites that have neither side, including null items
func compactRewrites(rewrites []BulletPointRewrite) []BulletPointRewrite {
	out := make([]BulletPointRewrite, 0, len(rewrites))
	for _, r := range rewrites {
		if strings.TrimSpace(r.Before) == "" && strings.TrimSpace(r.After) == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

func clampScore(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
