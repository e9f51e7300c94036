package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAnalyzeResponse_MissingListsBecomeEmpty(t *testing.T) {
	body := `{"success":true,"feedbackId":"abc123","analysis":{"score":88,"summary":"Solid","atsAnalysis":{"score":75}}}`

	resp, err := DecodeAnalyzeResponse(strings.NewReader(body))
	require.NoError(t, err)
	require.NotNil(t, resp.Analysis)

	a := resp.Analysis
	assert.Equal(t, 88, a.Score)
	assert.Equal(t, 75, a.ATSAnalysis.Score)
	assert.NotNil(t, a.Strengths)
	assert.Empty(t, a.Strengths)
	assert.NotNil(t, a.Weaknesses)
	assert.NotNil(t, a.ImprovementSuggestions)
	assert.NotNil(t, a.BulletPointRewrites)
	assert.NotNil(t, a.ATSAnalysis.Issues)
	assert.NotNil(t, a.ATSAnalysis.MissingKeywords)
	assert.NotNil(t, a.ATSAnalysis.FormatWarnings)
}

func TestDecodeAnalyzeResponse_NullListsAndUnknownFields(t *testing.T) {
	body := `{"success":true,"feedbackId":"f1","extra":1,"analysis":{"score":50,"strengths":null,"newField":"x","atsAnalysis":{"score":10,"issues":null}}}`

	resp, err := DecodeAnalyzeResponse(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, []string{}, resp.Analysis.Strengths)
	assert.Equal(t, []string{}, resp.Analysis.ATSAnalysis.Issues)
}

func TestDecodeAnalyzeResponse_NullEntriesDropped(t *testing.T) {
	body := `{"success":true,"feedbackId":"f1","analysis":{"score":70,
		"strengths":["a",null,""],
		"bulletPointRewrites":[null,{"before":"Did stuff","after":"Shipped X","explanation":null},{"before":null,"after":null}],
		"atsAnalysis":{"score":60,"missingKeywords":[null,"Go"]}}}`

	resp, err := DecodeAnalyzeResponse(strings.NewReader(body))
	require.NoError(t, err)

	a := resp.Analysis
	assert.Equal(t, []string{"a"}, a.Strengths)
	assert.Equal(t, []string{"Go"}, a.ATSAnalysis.MissingKeywords)
	require.Len(t, a.BulletPointRewrites, 1)
	assert.Equal(t, BulletPointRewrite{Before: "Did stuff", After: "Shipped X"}, a.BulletPointRewrites[0])
}

func TestDecodeAnalyzeResponse_Failure(t *testing.T) {
	resp, err := DecodeAnalyzeResponse(strings.NewReader(`{"success":false,"message":"Unsupported format"}`))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Unsupported format", resp.Message)
	assert.Nil(t, resp.Analysis)
	assert.Nil(t, resp.Feedback())
}

func TestDecodeAnalyzeResponse_InvalidJSON(t *testing.T) {
	_, err := DecodeAnalyzeResponse(strings.NewReader(`<html>`))
	assert.Error(t, err)
}

func TestNormalize_ClampsScores(t *testing.T) {
	a := &AnalysisResult{Score: 120, ATSAnalysis: ATSAnalysis{Score: -3}}
	a.Normalize()
	assert.Equal(t, 100, a.Score)
	assert.Equal(t, 0, a.ATSAnalysis.Score)

	var nilResult *AnalysisResult
	assert.NotPanics(t, func() { nilResult.Normalize() })
}

func TestFeedbackValid(t *testing.T) {
	tests := []struct {
		name     string
		feedback *Feedback
		want     bool
	}{
		{"nil feedback", nil, false},
		{"missing analysis", &Feedback{ID: "abc123"}, false},
		{"missing id", &Feedback{Analysis: &AnalysisResult{}}, false},
		{"complete", &Feedback{Analysis: &AnalysisResult{}, ID: "abc123"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.feedback.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalyzeResponseFeedback(t *testing.T) {
	resp := &AnalyzeResponse{Success: true, Analysis: &AnalysisResult{Score: 88}, FeedbackID: "abc123"}
	fb := resp.Feedback()
	require.NotNil(t, fb)
	assert.Equal(t, "abc123", fb.ID)
	assert.Equal(t, 88, fb.Analysis.Score)

	resp.FeedbackID = ""
	assert.Nil(t, resp.Feedback())
}
