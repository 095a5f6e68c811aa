package widget

import (
	"strings"
	"unicode"
)

// Sender of a displayed message.
type Sender string

const (
	SenderVisitor Sender = "visitor"
	SenderBot     Sender = "bot"
)

// DisplayMessage is a line in the message pane. Placeholder lines (welcome
// texts) are replaced when the session history first arrives.
type DisplayMessage struct {
	Content     string
	Sender      Sender
	Placeholder bool
}

// View is the presentation shell. Every string handed to a View is plain
// text and must be rendered as such, never interpreted as markup.
//
// The widget calls View methods while holding its lock, so implementations
// must not call back into the widget synchronously.
type View interface {
	// Mounted reports whether the shell is still attached to its host.
	Mounted() bool
	Mount()
	ApplyPresentation(p Presentation)
	ShowLeadForm()
	ShowChat()
	// ShowFormError sets the inline lead form error; "" clears it.
	ShowFormError(msg string)
	ClearMessages()
	AppendMessage(m DisplayMessage)
	SetOpen(open bool)
	FocusInput()
}

// PlainText strips control characters other than newline and tab, so
// backend text cannot drive a terminal.
func PlainText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
