package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mossy-p/webrtc-calling/internal/models"
)

// console shares stdin between the command loop and incoming-call prompts.
// While a prompt is pending the next line answers it.
type console struct {
	out io.Writer

	mu      sync.Mutex
	pending chan bool
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// ConfirmIncoming blocks until the user answers or ctx is done. A second
// prompt while one is pending is declined.
func (c *console) ConfirmIncoming(ctx context.Context, from models.Identity) bool {
	answer := make(chan bool, 1)

	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return false
	}
	c.pending = answer
	fmt.Fprintf(c.out, "incoming call from %s, accept? [y/N] ", from)
	c.mu.Unlock()

	select {
	case ok := <-answer:
		return ok
	case <-ctx.Done():
		c.mu.Lock()
		if c.pending == answer {
			c.pending = nil
		}
		c.mu.Unlock()
		return false
	}
}

// answer hands line to a pending prompt. It reports false when no prompt
// was waiting.
func (c *console) answer(line string) bool {
	c.mu.Lock()
	ch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if ch == nil {
		return false
	}
	ch <- isYes(line)
	return true
}

func isYes(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// parseCommand splits a console line into its verb and optional argument.
func parseCommand(line string) (verb, arg string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ""
	}
	verb = strings.ToLower(fields[0])
	if len(fields) > 1 {
		arg = fields[1]
	}
	return verb, arg
}
