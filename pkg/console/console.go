package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

const (
	blue  = "\x1b[34m"
	green = "\x1b[32m"
	reset = "\x1b[0m"
)

// Printer writes human-readable process status lines.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

var (
	stdout     *Printer
	stdoutOnce sync.Once
)

// Stdout returns a Printer on os.Stdout that colors only when attached to a terminal.
func Stdout() *Printer {
	stdoutOnce.Do(func() {
		fd := os.Stdout.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			stdout = New(colorable.NewColorableStdout(), true)
		} else {
			stdout = New(colorable.NewNonColorable(os.Stdout), false)
		}
	})
	return stdout
}

func New(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color}
}

// Listening announces a bound listener.
func (p *Printer) Listening(addr string) {
	p.printf("Server up and running on %s: %s\n", p.paint(blue, addr), p.paint(green, "✓"))
}

func (p *Printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + reset
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, format, args...)
}
