package session

import (
	"fmt"
	"strings"
)

// Command is one parsed line of session input
type Command struct {
	Name string
	Args []string
}

// commands lists the recognised verbs with their usage
var commands = []struct {
	name  string
	usage string
}{
	{"select", "select <file>        choose a resume to analyze"},
	{"drop", "drop <file>...       drop files; the first one is kept"},
	{"analyze", "analyze              submit the selected resume"},
	{"show", "show [format]        print the displayed feedback"},
	{"export", "export               save the PDF report"},
	{"reset", "reset                clear feedback and selection"},
	{"status", "status               print the workflow state"},
	{"help", "help                 list commands"},
	{"quit", "quit                 leave the session"},
}

var aliases = map[string]string{
	"exit":   "quit",
	"q":      "quit",
	"open":   "select",
	"?":      "help",
	"upload": "select",
}

// Parse turns a line into a command. A leading slash is optional. A line
// whose first word is not a command is treated as a file to select.
func Parse(line string) (Command, error) {
	tokens, err := Tokenize(line)
	if err != nil {
		return Command{}, err
	}
	if len(tokens) == 0 {
		return Command{}, nil
	}

	name := strings.ToLower(strings.TrimPrefix(tokens[0], "/"))
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	if isCommand(name) {
		return Command{Name: name, Args: tokens[1:]}, nil
	}
	if strings.HasPrefix(tokens[0], "/") && !strings.Contains(tokens[0][1:], "/") {
		return Command{}, fmt.Errorf("unknown command: %s", tokens[0])
	}
	return Command{Name: "select", Args: tokens}, nil
}

func isCommand(name string) bool {
	for _, c := range commands {
		if c.name == name {
			return true
		}
	}
	return false
}

// Tokenize splits a line on whitespace. Single and double quotes group
// words and a backslash escapes the next character outside single quotes.
func Tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		inToken bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inToken = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash")
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range commands {
		b.WriteString("  " + c.usage + "\n")
	}
	b.WriteString("A bare file path selects that file.\n")
	return b.String()
}
