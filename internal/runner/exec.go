package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

var commandContext = exec.CommandContext

// stderrTailLines bounds the diagnostics kept from a stage process. Stage
// tools can be chatty; only the end of stderr matters for classification.
const stderrTailLines = 40

// tailWriter keeps the last N lines written to it.
type tailWriter struct {
	limit   int
	lines   []string
	partial strings.Builder
}

func newTailWriter(limit int) *tailWriter {
	return &tailWriter{limit: limit}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			w.append(w.partial.String())
			w.partial.Reset()
			continue
		}
		w.partial.WriteByte(b)
	}
	return len(p), nil
}

func (w *tailWriter) append(line string) {
	w.lines = append(w.lines, line)
	if len(w.lines) > w.limit {
		w.lines = w.lines[len(w.lines)-w.limit:]
	}
}

func (w *tailWriter) String() string {
	lines := w.lines
	if w.partial.Len() > 0 {
		lines = append(append([]string(nil), lines...), w.partial.String())
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// invocation describes one stage process launch.
type invocation struct {
	command    string
	inputs     []inputBinding
	outputDir  string
	configPath string
	timeout    time.Duration
	grace      time.Duration
}

// inputBinding pairs a declared input name with its resolved path. Order is
// preserved so invocations are reproducible.
type inputBinding struct {
	name string
	path string
}

func (inv invocation) args() []string {
	args := make([]string, 0, 2*len(inv.inputs)+4)
	for _, input := range inv.inputs {
		args = append(args, "--input", input.name+"="+input.path)
	}
	args = append(args, "--output-dir", inv.outputDir, "--config", inv.configPath)
	return args
}

// execute runs the stage process and returns the stderr tail. The process
// gets SIGTERM on cancellation and SIGKILL after the grace period.
func execute(ctx context.Context, inv invocation) (string, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if inv.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	tail := newTailWriter(stderrTailLines)
	cmd := commandContext(runCtx, inv.command, inv.args()...) //nolint:gosec
	cmd.Stderr = tail
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	if inv.grace > 0 {
		cmd.WaitDelay = inv.grace
	}

	if err := cmd.Run(); err != nil {
		// Surface the deadline or cancellation so classification does not
		// mistake a killed process for a tool failure.
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return tail.String(), fmt.Errorf("run %s: %w: %w", inv.command, ctxErr, err)
		}
		return tail.String(), fmt.Errorf("run %s: %w", inv.command, err)
	}
	return tail.String(), nil
}
