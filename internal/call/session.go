// Package call drives one peer-to-peer audio call from media acquisition
// through offer/answer negotiation to teardown.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
)

const eventBuffer = 64

// Config wires a Session to its collaborators.
type Config struct {
	Self models.Identity
	Peer models.Identity

	Media       MediaSource
	Connections ConnectionFactory
	Signaler    Signaler
	Offers      OfferRecords

	// NegotiationTimeout fails a session stuck in StateNegotiating. Zero
	// disables it.
	NegotiationTimeout time.Duration

	// OnStatus receives every status change. It runs on the session loop and
	// must not call back into the session.
	OnStatus func(Snapshot)

	Log *slog.Logger
}

// Session is one call attempt with one peer. All state transitions run on a
// single loop goroutine; public methods and transport callbacks post work
// to it. A session that reached StateEnded or StateFailed is finished and
// ignores everything afterwards.
type Session struct {
	cfg Config
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events chan func()
	done   chan struct{}
	exited chan struct{}

	// Owned by the loop.
	state          State
	role           Role
	err            *CallError
	res            *resources
	remoteSet      bool
	awaitingAnswer bool
	pendingIce     []models.ICECandidate
	timer          *time.Timer
	timerGen       int

	mu   sync.RWMutex
	snap Snapshot
}

// New starts the session loop in StateIdle. If an incoming offer from the
// peer is already stored the status reads "incoming call ready".
func New(cfg Config) *Session {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	log := cfg.Log.With(slog.String("peer", string(cfg.Peer)))
	s := &Session{
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan func(), eventBuffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		res:    &resources{log: log},
	}

	go s.run()
	s.post(s.checkIncoming)
	return s
}

func (s *Session) run() {
	defer close(s.exited)
	for {
		select {
		case fn := <-s.events:
			fn()
			if s.state.Terminal() {
				return
			}
		case <-s.done:
			return
		}
	}
}

// post queues fn on the loop. It reports false once the session is finished.
func (s *Session) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// do runs fn on the loop and waits for it. It reports false when the session
// finished before fn could run.
func (s *Session) do(fn func()) bool {
	ran := make(chan struct{})
	if !s.post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}

	select {
	case <-ran:
		return true
	case <-s.exited:
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Done is closed once the session is finished and its resources released.
func (s *Session) Done() <-chan struct{} {
	return s.exited
}

func (s *Session) Peer() models.Identity {
	return s.cfg.Peer
}

// State returns a snapshot safe to read from any goroutine.
func (s *Session) State() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Start acquires the microphone and begins negotiating. It answers when an
// incoming offer from the peer is stored and offers otherwise. Only the first
// call from StateIdle does anything.
func (s *Session) Start(ctx context.Context) error {
	var err error
	if !s.do(func() { err = s.start(ctx) }) {
		return ErrSessionClosed
	}
	return err
}

// Hangup tells the peer and ends the call. Calling it again is a no-op.
func (s *Session) Hangup() {
	s.do(func() {
		s.send(models.Hangup{})
		s.finish(StateEnded, nil)
	})
}

// Teardown ends the call without telling the peer, as when the page goes away.
func (s *Session) Teardown() {
	s.do(func() {
		s.finish(StateEnded, nil)
	})
}

// Probe checks microphone access without starting a call.
func (s *Session) Probe(ctx context.Context) error {
	var err error
	if !s.do(func() { err = s.probe(ctx) }) {
		return ErrSessionClosed
	}
	return err
}

// Deliver hands a relayed message to the session. Messages from anyone but
// the peer, and payloads that do not decode, are ignored.
func (s *Session) Deliver(d models.Delivery) {
	if d.FromIdentity != s.cfg.Peer {
		return
	}
	p, err := models.DecodePayload(d.Payload)
	if err != nil {
		s.log.Debug("ignoring malformed payload", sl.Err(err))
		return
	}
	s.post(func() {
		p.Accept(&inbound{s: s, raw: d.Payload})
	})
}

func (s *Session) checkIncoming() {
	if _, ok := s.loadOffer(); ok {
		s.setStatus("incoming call ready")
	}
}

func (s *Session) loadOffer() (models.Offer, bool) {
	rec, ok, err := s.cfg.Offers.Load(s.ctx, s.cfg.Peer)
	if err != nil {
		s.log.Warn("failed to load incoming offer", sl.Err(err))
		return models.Offer{}, false
	}
	if !ok {
		return models.Offer{}, false
	}
	return rec.Offer()
}

func (s *Session) start(ctx context.Context) error {
	const op = "call.session.start"
	log := s.log.With(slog.String("op", op))

	if s.state != StateIdle {
		return ErrAlreadyStarted
	}

	s.setState(StateAcquiringMedia)
	s.setStatus("awaiting permission")

	media, err := s.cfg.Media.AcquireAudio(ctx)
	if err != nil {
		log.Info("media acquisition failed", sl.Err(err))
		s.fail(classifyMedia(err))
		return s.err
	}
	s.res.media = media

	conn, err := s.cfg.Connections.NewConnection(ctx)
	if err != nil {
		s.fail(newCallError(KindConnectionFailure, err))
		return s.err
	}
	s.res.conn = conn
	s.wire(conn)

	if err := conn.AttachMedia(media); err != nil {
		s.fail(newCallError(KindUnknown, err))
		return s.err
	}

	if offer, ok := s.loadOffer(); ok {
		log.Info("answering stored offer")
		s.answerOffer(offer.SDP)
	} else {
		log.Info("placing call")
		s.placeOffer()
	}
	return s.errOrNil()
}

func (s *Session) errOrNil() error {
	if s.err != nil {
		return s.err
	}
	return nil
}

// wire routes every transport callback onto the loop.
func (s *Session) wire(conn Connection) {
	conn.OnICECandidate(func(c models.ICECandidate) {
		s.post(func() { s.onLocalCandidate(c) })
	})
	conn.OnConnectionStateChange(func(st ConnectionState) {
		s.post(func() { s.onConnectionState(st) })
	})
	conn.OnTrack(func(kind string) {
		s.log.Info("remote track received", slog.String("kind", kind))
	})
}

func (s *Session) placeOffer() {
	s.role = RoleOffering
	s.setState(StateNegotiating)
	s.setStatus("calling")

	offer, err := s.res.conn.CreateOffer()
	if err != nil {
		s.fail(newCallError(KindConnectionFailure, err))
		return
	}
	if err := s.res.conn.SetLocalDescription(offer); err != nil {
		s.fail(newCallError(KindConnectionFailure, err))
		return
	}
	s.awaitingAnswer = true
	if !s.send(models.Offer{SDP: offer}) {
		return
	}
	s.armTimeout()
}

func (s *Session) answerOffer(offer models.SessionDescription) {
	s.role = RoleAnswering
	s.setState(StateNegotiating)
	s.setStatus("answering")

	if !s.applyRemoteAndAnswer(offer) {
		return
	}
	if err := s.cfg.Offers.Clear(s.ctx, s.cfg.Peer); err != nil {
		s.log.Warn("failed to clear incoming offer", sl.Err(err))
	}
	s.armTimeout()
}

// applyRemoteAndAnswer sets offer as the remote description and publishes
// the answer. It reports false if the session failed on the way.
func (s *Session) applyRemoteAndAnswer(offer models.SessionDescription) bool {
	conn := s.res.conn
	if err := conn.SetRemoteDescription(offer); err != nil {
		s.fail(newCallError(KindConnectionFailure, err))
		return false
	}
	s.remoteSet = true
	s.flushIce()

	answer, err := conn.CreateAnswer()
	if err != nil {
		s.fail(newCallError(KindConnectionFailure, err))
		return false
	}
	if err := conn.SetLocalDescription(answer); err != nil {
		s.fail(newCallError(KindConnectionFailure, err))
		return false
	}
	return s.send(models.Answer{SDP: answer})
}

// flushIce applies queued candidates in arrival order. It runs once, right
// after the first remote description is set.
func (s *Session) flushIce() {
	queued := s.pendingIce
	s.pendingIce = nil
	for _, c := range queued {
		if err := s.res.conn.AddICECandidate(c); err != nil {
			s.log.Debug("failed to apply queued candidate", sl.Err(err))
		}
	}
}

func (s *Session) onLocalCandidate(c models.ICECandidate) {
	s.send(models.IceCandidate{Candidate: c})
}

func (s *Session) onConnectionState(st ConnectionState) {
	s.log.Debug("connection state changed", slog.String("state", string(st)))

	switch st {
	case ConnectionConnected:
		if s.state == StateNegotiating {
			s.stopTimeout()
			s.setState(StateConnected)
			s.setStatus("connected")
			return
		}
	case ConnectionFailed:
		s.fail(newCallError(KindConnectionFailure, errors.New("connection failed")))
		return
	}
	s.setStatus("connection state: " + string(st))
}

// send publishes p to the peer. A failed publish fails the session, except
// for candidates and hangups which are best effort.
func (s *Session) send(p models.Payload) bool {
	err := s.cfg.Signaler.Send(s.ctx, s.cfg.Peer, p)
	if err == nil {
		return true
	}

	switch p.(type) {
	case models.IceCandidate, models.Hangup:
		s.log.Warn("failed to send signal", slog.String("type", string(p.Type())), sl.Err(err))
		return true
	default:
		s.fail(newCallError(KindSignalingFailure, err))
		return false
	}
}

func (s *Session) armTimeout() {
	if s.cfg.NegotiationTimeout <= 0 || s.state != StateNegotiating {
		return
	}
	s.stopTimeout()
	gen := s.timerGen
	s.timer = time.AfterFunc(s.cfg.NegotiationTimeout, func() {
		s.post(func() {
			if gen == s.timerGen && s.state == StateNegotiating {
				s.fail(&CallError{Kind: KindNegotiationTimeout, Message: "negotiation timed out"})
			}
		})
	})
}

func (s *Session) stopTimeout() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) probe(ctx context.Context) error {
	if s.state != StateIdle {
		return ErrAlreadyStarted
	}
	s.setStatus("awaiting permission")
	media, err := s.cfg.Media.AcquireAudio(ctx)
	if err != nil {
		ce := classifyMedia(err)
		s.setStatus(statusFor(ce))
		return ce
	}
	media.Stop()
	s.setStatus("microphone ready")
	return nil
}

func (s *Session) fail(e *CallError) {
	s.finish(StateFailed, e)
}

// finish moves to a terminal state and releases every owned resource. Only
// the first call has any effect.
func (s *Session) finish(state State, e *CallError) {
	if s.state.Terminal() {
		return
	}
	s.stopTimeout()
	s.err = e
	s.res.release()
	s.pendingIce = nil

	s.mu.Lock()
	s.state = state
	s.snap.State = state
	s.snap.Err = e
	s.mu.Unlock()

	if e != nil {
		s.log.Info("call failed", slog.String("kind", e.Kind.String()), slog.String("message", e.Message))
		s.setStatus(statusFor(e))
	} else {
		s.log.Info("call ended")
		s.setStatus("call ended")
	}

	s.cancel()
	close(s.done)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.snap.State = st
	s.snap.Role = s.role
	s.mu.Unlock()
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.snap.Status = status
	s.snap.Role = s.role
	snap := s.snap
	s.mu.Unlock()

	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(snap)
	}
}

// inbound dispatches one relayed payload from the peer.
type inbound struct {
	s   *Session
	raw json.RawMessage
}

func (in *inbound) VisitOffer(o models.Offer) {
	s := in.s
	switch {
	case s.state == StateIdle:
		// Kept until the user starts the call, which then answers it.
		rec := models.IncomingOfferRecord{FromIdentity: s.cfg.Peer, Payload: in.raw, ReceivedAt: time.Now().UTC()}
		if err := s.cfg.Offers.Save(s.ctx, rec); err != nil {
			s.log.Warn("failed to store incoming offer", sl.Err(err))
			return
		}
		s.setStatus("ringing")

	case s.state == StateNegotiating && s.role == RoleOffering && s.awaitingAnswer:
		// Both sides offered at once. The side with the greater identity
		// yields and answers, the other keeps its own offer.
		if s.cfg.Self < s.cfg.Peer {
			s.log.Info("ignoring colliding offer")
			return
		}
		s.log.Info("rolling back local offer for colliding offer")
		if err := s.res.conn.Rollback(); err != nil {
			s.fail(newCallError(KindConnectionFailure, err))
			return
		}
		s.awaitingAnswer = false
		s.role = RoleAnswering
		s.setStatus("answering")
		s.applyRemoteAndAnswer(o.SDP)

	case s.state == StateNegotiating || s.state == StateConnected:
		// Renegotiation from the peer on an established session.
		s.applyRemoteAndAnswer(o.SDP)
	}
}

func (in *inbound) VisitAnswer(a models.Answer) {
	s := in.s
	if s.state != StateNegotiating || s.role != RoleOffering || !s.awaitingAnswer {
		return
	}
	if err := s.res.conn.SetRemoteDescription(a.SDP); err != nil {
		s.fail(newCallError(KindConnectionFailure, err))
		return
	}
	s.awaitingAnswer = false
	s.remoteSet = true
	s.flushIce()
}

func (in *inbound) VisitIceCandidate(c models.IceCandidate) {
	s := in.s
	if !s.remoteSet {
		s.pendingIce = append(s.pendingIce, c.Candidate)
		return
	}
	if err := s.res.conn.AddICECandidate(c.Candidate); err != nil {
		s.log.Debug("failed to apply candidate", sl.Err(err))
	}
}

func (in *inbound) VisitHangup(models.Hangup) {
	in.s.finish(StateEnded, nil)
}
