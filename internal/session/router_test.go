package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []string
		wantErr bool
	}{
		{name: "empty", line: "   ", want: nil},
		{name: "words", line: "select  resume.pdf", want: []string{"select", "resume.pdf"}},
		{name: "double quotes", line: `select "My Resume.pdf"`, want: []string{"select", "My Resume.pdf"}},
		{name: "single quotes keep backslash", line: `'C:\cv.pdf'`, want: []string{`C:\cv.pdf`}},
		{name: "escaped space", line: `drop a\ b.pdf c.pdf`, want: []string{"drop", "a b.pdf", "c.pdf"}},
		{name: "empty quoted token", line: `show ""`, want: []string{"show", ""}},
		{name: "tabs", line: "show\tjson", want: []string{"show", "json"}},
		{name: "unterminated", line: `select "oops`, wantErr: true},
		{name: "trailing backslash", line: `select a\`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		line     string
		wantName string
		wantArgs []string
		wantErr  bool
	}{
		{line: "", wantName: ""},
		{line: "analyze", wantName: "analyze", wantArgs: []string{}},
		{line: "/export", wantName: "export", wantArgs: []string{}},
		{line: "SHOW markdown", wantName: "show", wantArgs: []string{"markdown"}},
		{line: "exit", wantName: "quit", wantArgs: []string{}},
		{line: "upload cv.pdf", wantName: "select", wantArgs: []string{"cv.pdf"}},
		{line: "cv.pdf", wantName: "select", wantArgs: []string{"cv.pdf"}},
		{line: "/home/me/cv.pdf", wantName: "select", wantArgs: []string{"/home/me/cv.pdf"}},
		{line: "/bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := Parse(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, cmd.Name)
			if tt.wantArgs != nil {
				assert.Equal(t, tt.wantArgs, cmd.Args)
			}
		})
	}
}

func TestHelpListsEveryCommand(t *testing.T) {
	help := helpText()
	for _, c := range commands {
		assert.Contains(t, help, c.name)
	}
}
