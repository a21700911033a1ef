package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_AnswerRoutesToPrompt(t *testing.T) {
	var out bytes.Buffer
	con := newConsole(&out)
	assert.False(t, con.answer("y"), "no prompt pending")

	got := make(chan bool, 1)
	go func() { got <- con.ConfirmIncoming(context.Background(), "alice") }()

	require.Eventually(t, func() bool { return con.answer(" Yes ") }, time.Second, time.Millisecond)
	assert.True(t, <-got)

	con.mu.Lock()
	assert.Contains(t, out.String(), "incoming call from alice")
	con.mu.Unlock()
}

func TestConsole_PromptCanceled(t *testing.T) {
	con := newConsole(&bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, con.ConfirmIncoming(ctx, "alice"))
	assert.False(t, con.answer("y"))
}

func TestIsYes(t *testing.T) {
	for line, want := range map[string]bool{"y": true, "YES": true, "": false, "n": false, "nope": false} {
		assert.Equal(t, want, isYes(line), line)
	}
}

func TestParseCommand(t *testing.T) {
	verb, arg := parseCommand("  CALL  bob extra")
	assert.Equal(t, "call", verb)
	assert.Equal(t, "bob", arg)

	verb, arg = parseCommand("   ")
	assert.Empty(t, verb)
	assert.Empty(t, arg)
}
