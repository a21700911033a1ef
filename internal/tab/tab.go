// Package tab is the application root of one call client. It owns the relay
// stream, the signal bus, the offer store, the incoming-call notifier and at
// most one call page.
package tab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mossy-p/webrtc-calling/config"
	"github.com/mossy-p/webrtc-calling/internal/bus"
	"github.com/mossy-p/webrtc-calling/internal/call"
	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/mossy-p/webrtc-calling/internal/notifier"
	"github.com/mossy-p/webrtc-calling/internal/offerstore"
	"github.com/mossy-p/webrtc-calling/internal/signalclient"
	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
)

var ErrClosed = errors.New("tab closed")

const inboundBuffer = 256

type Config struct {
	Self        models.Identity
	Signaler    call.Signaler
	Inbound     *bus.Topic[models.Delivery]
	Offers      call.OfferRecords
	Media       call.MediaSource
	Connections call.ConnectionFactory
	Prompter    notifier.Prompter

	NegotiationTimeout time.Duration
	// AutoAnswer starts the session right away when a call page is opened
	// for an accepted incoming call.
	AutoAnswer bool
	OnStatus   func(peer models.Identity, snap call.Snapshot)
	// Lookup checks a peer against the relay's user directory. Nil accepts
	// every peer.
	Lookup func(ctx context.Context, id models.Identity) (bool, error)

	Log *slog.Logger
}

type page struct {
	peer    models.Identity
	session *call.Session
	unsub   func()
}

type Tab struct {
	cfg Config
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closers []io.Closer

	mu     sync.Mutex
	page   *page
	closed bool
}

// New starts the notifier on cfg.Inbound right away, so offers arriving
// before any call page is opened are caught.
func New(cfg Config) *Tab {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tab{
		cfg:    cfg,
		log:    cfg.Log.With(slog.String("self", string(cfg.Self))),
		ctx:    ctx,
		cancel: cancel,
	}

	deliveries, unsub := cfg.Inbound.Subscribe()
	n := notifier.New(cfg.Offers, cfg.Prompter, t, t, t.log)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer unsub()
		n.Run(ctx, deliveries)
	}()

	return t
}

// Dial logs in, opens the relay stream and the offer store described by cfg
// and builds a Tab on top of them. Closing the Tab closes all of them.
func Dial(ctx context.Context, cfg *config.ClientConfig, media call.MediaSource, conns call.ConnectionFactory, prompter notifier.Prompter, log *slog.Logger) (*Tab, error) {
	const op = "tab.dial"

	creds, err := signalclient.Login(ctx, nil, cfg.ServerURL, cfg.Username, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	store, err := offerstore.Open(cfg.OfferStore)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	inbound := bus.NewTopic[models.Delivery](inboundBuffer)
	client, err := signalclient.Dial(ctx, cfg.ServerURL, creds.Token, inbound, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t := New(Config{
		Self:               creds.UserID,
		Signaler:           client,
		Inbound:            inbound,
		Offers:             offerstore.NewIncomingOffers(store, cfg.OfferStore.TTL),
		Media:              media,
		Connections:        conns,
		Prompter:           prompter,
		NegotiationTimeout: cfg.NegotiationTimeout,
		AutoAnswer:         true,
		Lookup: func(ctx context.Context, id models.Identity) (bool, error) {
			return signalclient.UserExists(ctx, nil, cfg.ServerURL, creds.Token, id)
		},
		Log: log,
	})
	t.closers = append(t.closers, client, store)

	// A dead relay stream ends every subscriber.
	go func() {
		select {
		case <-client.Done():
			inbound.Close()
		case <-t.ctx.Done():
		}
	}()

	return t, nil
}

func (t *Tab) Self() models.Identity {
	return t.cfg.Self
}

// PeerExists reports whether id is known to the relay.
func (t *Tab) PeerExists(ctx context.Context, id models.Identity) (bool, error) {
	if t.cfg.Lookup == nil {
		return true, nil
	}
	return t.cfg.Lookup(ctx, id)
}

// SetStatusObserver replaces the status callback for pages opened afterwards.
func (t *Tab) SetStatusObserver(f func(peer models.Identity, snap call.Snapshot)) {
	t.mu.Lock()
	t.cfg.OnStatus = f
	t.mu.Unlock()
}

// OpenCall replaces the current call page with one for peer. Its session
// receives every delivery from peer from now on.
func (t *Tab) OpenCall(peer models.Identity, incoming bool) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	old := t.page
	onStatus := t.cfg.OnStatus
	t.mu.Unlock()

	if old != nil {
		t.closePage(old)
	}

	var statusFn func(call.Snapshot)
	if onStatus != nil {
		statusFn = func(s call.Snapshot) { onStatus(peer, s) }
	}
	session := call.New(call.Config{
		Self:               t.cfg.Self,
		Peer:               peer,
		Media:              t.cfg.Media,
		Connections:        t.cfg.Connections,
		Signaler:           t.cfg.Signaler,
		Offers:             t.cfg.Offers,
		NegotiationTimeout: t.cfg.NegotiationTimeout,
		OnStatus:           statusFn,
		Log:                t.log,
	})

	deliveries, unsub := t.cfg.Inbound.Subscribe()
	p := &page{peer: peer, session: session, unsub: unsub}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.closePage(p)
		return ErrClosed
	}
	t.page = p
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		route(session, deliveries)
	}()

	t.log.Info("call page opened", slog.String("peer", string(peer)), slog.Bool("incoming", incoming))

	if incoming && t.cfg.AutoAnswer {
		if err := session.Start(t.ctx); err != nil {
			t.log.Warn("failed to answer incoming call", slog.String("peer", string(peer)), sl.Err(err))
		}
	}
	return nil
}

// route feeds deliveries to s until the session or the subscription ends.
func route(s *call.Session, deliveries <-chan models.Delivery) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				s.Teardown()
				return
			}
			s.Deliver(d)
		case <-s.Done():
			return
		}
	}
}

// Session returns the session of the current call page, if any.
func (t *Tab) Session() *call.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.page == nil {
		return nil
	}
	return t.page.session
}

// CallActive reports whether a call page with an unfinished session is open.
func (t *Tab) CallActive() bool {
	s := t.Session()
	if s == nil {
		return false
	}
	select {
	case <-s.Done():
		return false
	default:
		return true
	}
}

// ClosePage leaves the current call page, tearing its session down.
func (t *Tab) ClosePage() {
	t.mu.Lock()
	p := t.page
	t.page = nil
	t.mu.Unlock()

	if p != nil {
		t.closePage(p)
	}
}

func (t *Tab) closePage(p *page) {
	p.session.Teardown()
	p.unsub()
	<-p.session.Done()
}

// Close tears down the current page, stops the notifier and closes what
// Dial opened.
func (t *Tab) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	p := t.page
	t.page = nil
	t.mu.Unlock()

	if p != nil {
		t.closePage(p)
	}
	t.cancel()
	t.wg.Wait()

	var errs []error
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
