package main

import (
	"fmt"
	"io"
	"sync"

	"agyntsynq/internal/widget"
)

// terminalView renders the widget as lines of text. Everything from the
// server goes through widget.PlainText first.
type terminalView struct {
	mu      sync.Mutex
	out     io.Writer
	mounted bool
	name    string
}

func newTerminalView(out io.Writer) *terminalView {
	return &terminalView{out: out}
}

func (v *terminalView) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted
}

func (v *terminalView) Mount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mounted = true
}

func (v *terminalView) ApplyPresentation(p widget.Presentation) {
	v.mu.Lock()
	defer v.mu.Unlock()
	name := widget.PlainText(p.Name)
	if name == v.name {
		return
	}
	v.name = name
	fmt.Fprintf(v.out, "== %s ==\n", name)
}

func (v *terminalView) ShowLeadForm() {
	v.println("Before we chat, tell us who you are.")
}

func (v *terminalView) ShowChat() {}

func (v *terminalView) ShowFormError(msg string) {
	if msg != "" {
		v.println("! " + msg)
	}
}

func (v *terminalView) ClearMessages() {
	v.println("--")
}

func (v *terminalView) AppendMessage(m widget.DisplayMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	who := v.name
	if m.Sender == widget.SenderVisitor {
		who = "you"
	}
	fmt.Fprintf(v.out, "[%s] %s\n", who, widget.PlainText(m.Content))
}

func (v *terminalView) SetOpen(bool) {}

func (v *terminalView) FocusInput() {}

func (v *terminalView) println(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, s)
}

var _ widget.View = (*terminalView)(nil)
