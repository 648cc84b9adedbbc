package events

import (
	"fmt"
	"io"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// Renderer renders agent events to the console: a spinner line while the
// model or a tool is busy, the chosen resource, and in verbose mode every
// state change and tool result.
type Renderer struct {
	w           io.Writer
	interactive bool
	verbose     bool

	mu   sync.Mutex
	spin *spinner
}

// NewRenderer creates a renderer writing to w. The spinner is only shown when
// interactive is set.
func NewRenderer(w io.Writer, interactive, verbose bool) *Renderer {
	return &Renderer{w: w, interactive: interactive, verbose: verbose}
}

// Handle processes a single event. It is a Handler.
func (r *Renderer) Handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case StateChanged:
		if r.verbose {
			r.stopSpinner()
			pterm.Fprintln(r.w, pterm.NewStyle(pterm.FgGray).Sprintf("· %s (turn %d)", ev.State, ev.Turn))
		}
		if label := spinnerLabel(ev.State); label != "" {
			r.startSpinner(label)
		} else {
			r.stopSpinner()
		}
	case ResourceChosen:
		r.stopSpinner()
		pterm.Fprintln(r.w, pterm.NewStyle(pterm.FgLightCyan).Sprintf("\n[LLM chose resource: %s]", ev.URI))
	case ToolCall:
		if r.verbose {
			r.stopSpinner()
			pterm.Fprintln(r.w, pterm.NewStyle(pterm.FgGray).Sprintf("→ %s %s", ev.Tool, ev.Args))
		}
	case ToolResult:
		if r.verbose {
			r.stopSpinner()
			mark := pterm.NewStyle(pterm.FgGreen).Sprint("✓")
			if ev.IsError {
				mark = pterm.NewStyle(pterm.FgRed).Sprint("✗")
			}
			pterm.Fprintln(r.w, fmt.Sprintf("%s %s %s", mark, ev.Tool, truncate(ev.Message, 160)))
		}
	case Text:
		// Text is part of the final answer and printed by the caller.
	case Done, Failed:
		r.stopSpinner()
	}
}

// Stop clears any running spinner.
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopSpinner()
}

func spinnerLabel(state string) string {
	switch state {
	case StateGatheringContext:
		return "Reading database structure"
	case StateAwaitingModel:
		return "Thinking"
	case StateDispatchingTools:
		return "Running SQL"
	}
	return ""
}

func (r *Renderer) startSpinner(label string) {
	if !r.interactive {
		return
	}
	if r.spin != nil {
		r.spin.setLabel(label)
		return
	}
	r.spin = startSpinner(label)
}

func (r *Renderer) stopSpinner() {
	if r.spin != nil {
		r.spin.stop()
		r.spin = nil
	}
}

// spinner is a single animated status line drawn in a pterm area.
type spinner struct {
	area *pterm.AreaPrinter
	done chan struct{}
	wg   sync.WaitGroup

	mu    sync.Mutex
	label string
}

func startSpinner(label string) *spinner {
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		return nil
	}
	cursor.Hide()
	s := &spinner{area: area, done: make(chan struct{}), label: label}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		idx := 0
		for {
			select {
			case <-t.C:
				idx++
				s.mu.Lock()
				text := fmt.Sprintf("%s %s", spinnerFrames[idx%len(spinnerFrames)], s.label)
				s.mu.Unlock()
				s.area.Update(text)
			case <-s.done:
				return
			}
		}
	}()
	return s
}

func (s *spinner) setLabel(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
}

func (s *spinner) stop() {
	close(s.done)
	s.wg.Wait()
	_ = s.area.Stop()
	cursor.Show()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
