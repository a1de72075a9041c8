package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal. Falls back to false for
// plain io.Writer values such as *bytes.Buffer.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

const barWidth = 30

// Steps reports a fixed sequence of named steps such as the phases of
// setup. On a terminal the running step is redrawn in place behind a bar:
//
//	[=========>          ] 3/7 Installing Windows components
//
// Other writers get one "[3/7] ..." line per step.
type Steps struct {
	mu    sync.Mutex
	w     io.Writer
	tty   bool
	names []string
	cur   int // index of the running step, -1 before the first Next
	ended bool
}

// NewSteps returns a reporter for names, in order.
func NewSteps(w io.Writer, names ...string) *Steps {
	return &Steps{w: w, tty: writerIsTTY(w), names: names, cur: -1}
}

// Total is the number of steps.
func (s *Steps) Total() int {
	return len(s.names)
}

// Next starts the next step and returns its name. Past the last step it
// does nothing and returns "".
func (s *Steps) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || s.cur+1 >= len(s.names) {
		return ""
	}
	s.cur++
	s.draw(s.cur)
	return s.names[s.cur]
}

// Done draws the full bar and ends the line.
func (s *Steps) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	s.ended = true
	if s.tty && len(s.names) > 0 {
		s.cur = len(s.names) - 1
		s.draw(len(s.names))
		fmt.Fprintln(s.w)
	}
}

// Fail ends the line and names the step that did not finish.
func (s *Steps) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || s.cur < 0 {
		s.ended = true
		return
	}
	s.ended = true
	if s.tty {
		fmt.Fprintln(s.w)
	}
	fmt.Fprintf(s.w, "✗ Step %d/%d failed: %s\n", s.cur+1, len(s.names), s.names[s.cur])
}

// draw renders with finished steps filled (lock held).
func (s *Steps) draw(finished int) {
	total := len(s.names)
	name := s.names[s.cur]
	if !s.tty {
		fmt.Fprintf(s.w, "[%d/%d] %s\n", s.cur+1, total, name)
		return
	}
	fmt.Fprintf(s.w, "\r\033[K%s %d/%d %s", bar(finished, total, barWidth), s.cur+1, total, name)
}

// bar draws done out of total as a bracketed bar of width cells.
func bar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < width; i++ {
		switch {
		case i < filled-1:
			b.WriteString("=")
		case i == filled-1:
			b.WriteString(">")
		default:
			b.WriteString(" ")
		}
	}
	b.WriteString("]")
	return b.String()
}

var spinnerFrames = []string{"|", "/", "-", "\\"}

// Spinner shows that a bounded wait is in progress, e.g. for Wine to
// finish writing a registry file. Detail carries what the wait last saw.
//
//	/  Waiting for the Wine prefix: system.reg 1.2 MiB (41s remaining)
type Spinner struct {
	mu      sync.Mutex
	w       io.Writer
	tty     bool
	message string
	detail  string
	timeout time.Duration
	started time.Time
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewSpinner returns a spinner for message. A positive timeout shows the
// time left; otherwise the elapsed time is shown.
func NewSpinner(w io.Writer, message string, timeout time.Duration) *Spinner {
	return &Spinner{
		w:       w,
		tty:     writerIsTTY(w),
		message: message,
		timeout: timeout,
		now:     time.Now,
	}
}

// Start begins the animation. On a non-terminal writer the message is
// printed once instead. Calling Start twice does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	s.started = s.now()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	if !s.tty {
		fmt.Fprintf(s.w, "%s...\n", s.message)
		close(s.done)
		return
	}

	go s.animate()
}

func (s *Spinner) animate() {
	defer close(s.done)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r\033[K%s  %s", spinnerFrames[frame%len(spinnerFrames)], s.line())
			s.mu.Unlock()
		}
	}
}

// Detail replaces the text shown after the message.
func (s *Spinner) Detail(detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detail = detail
}

// line is the text after the frame (lock held).
func (s *Spinner) line() string {
	text := s.message
	if s.detail != "" {
		text += ": " + s.detail
	}

	elapsed := s.now().Sub(s.started)
	if s.timeout > 0 {
		remaining := s.timeout - elapsed
		if remaining < 0 {
			remaining = 0
		}
		return fmt.Sprintf("%s (%ds remaining)", text, int(remaining.Seconds()))
	}
	return fmt.Sprintf("%s (%ds elapsed)", text, int(elapsed.Seconds()))
}

// Stop ends the animation and clears the line. It returns once the
// spinner no longer writes. Safe to call more than once.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	if stop == nil {
		s.mu.Unlock()
		return
	}
	select {
	case <-stop:
		s.mu.Unlock()
		return
	default:
		close(stop)
	}
	s.mu.Unlock()

	<-done
	if s.tty {
		fmt.Fprint(s.w, "\r\033[K")
	}
}
