package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss/v2"
	"resumereview/internal/errors"
)

// Variant selects how prominently a notification is shown
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a short user-facing message
type Notification struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Variant     Variant `json:"variant"`
}

// Info builds a default-variant notification
func Info(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDefault}
}

// Failure builds a destructive notification
func Failure(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDestructive}
}

func (n Notification) String() string {
	if n.Description == "" {
		return n.Title
	}
	return fmt.Sprintf("%s: %s", n.Title, n.Description)
}

// Notifier delivers notifications to the user
type Notifier interface {
	Notify(n Notification)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	destructiveTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("196"))

	descriptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))
)

// Console prints notifications to a writer and mirrors them to the logger
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	logger *errors.Logger
	plain  bool
}

// NewConsole creates a console notifier. Plain output skips styling.
func NewConsole(out io.Writer, logger *errors.Logger, plain bool) *Console {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &Console{out: out, logger: logger, plain: plain}
}

func (c *Console) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n.Variant == VariantDestructive {
		c.logger.Warn("Notification", "title", n.Title, "description", n.Description, "variant", n.Variant)
	} else {
		c.logger.Info("Notification", "title", n.Title, "description", n.Description, "variant", n.Variant)
	}

	if c.out == nil {
		return
	}
	if c.plain {
		_, _ = fmt.Fprintln(c.out, n.String())
		return
	}

	style := titleStyle
	marker := "✓"
	if n.Variant == VariantDestructive {
		style = destructiveTitleStyle
		marker = "✗"
	}
	line := style.Render(marker + " " + n.Title)
	if n.Description != "" {
		line += " " + descriptionStyle.Render(n.Description)
	}
	_, _ = fmt.Fprintln(c.out, line)
}

// Recorder keeps every notification in memory
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

// All returns a copy of the recorded notifications
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// Last returns the most recent notification
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notifications) == 0 {
		return Notification{}, false
	}
	return r.notifications[len(r.notifications)-1], true
}

// Len returns how many notifications were recorded
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

// Reset forgets recorded notifications
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = nil
}

// Multi fans a notification out to several notifiers
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}

// Discard drops notifications
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Notification) {}
