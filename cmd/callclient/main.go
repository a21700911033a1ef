package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mossy-p/webrtc-calling/config"
	"github.com/mossy-p/webrtc-calling/internal/call"
	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/mossy-p/webrtc-calling/internal/rtc"
	"github.com/mossy-p/webrtc-calling/internal/tab"
	"github.com/mossy-p/webrtc-calling/lib/logger"
	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
)

const usage = `commands:
  call <id>   open a call page for <id> and place the call
  open <id>   open a call page for <id> without starting it
  start       start the open page (answers a stored offer)
  hangup      end the call and tell the peer
  probe       check microphone access
  status      show the page state
  close       leave the call page
  quit        exit
`

var errNoPage = errors.New("no call page open")

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the console.
	log := logger.New(cfg.Environment, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("call client stopped", sl.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ClientConfig, log *slog.Logger) error {
	engine, err := rtc.NewEngine(cfg.WebRTC, log)
	if err != nil {
		return err
	}

	con := newConsole(os.Stdout)
	t, err := tab.Dial(ctx, cfg, rtc.DefaultAudioSource(log), engine, con, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.Close(); err != nil {
			log.Warn("failed to close tab", sl.Err(err))
		}
	}()

	t.SetStatusObserver(func(peer models.Identity, snap call.Snapshot) {
		con.printf("[%s] %s\n", peer, snap.Status)
	})

	con.printf("signed in as %s\n%s", t.Self(), usage)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if con.answer(line) {
				continue
			}
			quit, err := exec(ctx, t, con, line)
			if err != nil {
				con.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func exec(ctx context.Context, t *tab.Tab, con *console, line string) (bool, error) {
	verb, arg := parseCommand(line)
	switch verb {
	case "":
		return false, nil
	case "call", "open":
		if arg == "" {
			return false, fmt.Errorf("%s needs a user id", verb)
		}
		peer := models.Identity(arg)
		ok, err := t.PeerExists(ctx, peer)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("user %s not found", peer)
		}
		if err := t.OpenCall(peer, false); err != nil {
			return false, err
		}
		if verb == "call" {
			return false, t.Session().Start(ctx)
		}
		return false, nil
	case "start":
		s := t.Session()
		if s == nil {
			return false, errNoPage
		}
		return false, s.Start(ctx)
	case "hangup":
		s := t.Session()
		if s == nil {
			return false, errNoPage
		}
		s.Hangup()
		return false, nil
	case "probe":
		s := t.Session()
		if s == nil {
			return false, errNoPage
		}
		return false, s.Probe(ctx)
	case "status":
		s := t.Session()
		if s == nil {
			return false, errNoPage
		}
		snap := s.State()
		con.printf("%s: %s (%s) %s\n", s.Peer(), snap.State, snap.Role, snap.Status)
		return false, nil
	case "close":
		t.ClosePage()
		return false, nil
	case "help":
		con.printf("%s", usage)
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", verb)
	}
}
