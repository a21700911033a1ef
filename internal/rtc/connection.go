package rtc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mossy-p/webrtc-calling/internal/call"
	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
	"github.com/pion/webrtc/v4"
)

var ErrNotATrack = errors.New("local media does not carry a webrtc track")

// Track is local media that can be sent over a peer connection.
type Track interface {
	call.LocalMedia
	Track() webrtc.TrackLocal
}

// Connection wraps a pion PeerConnection. Callbacks registered on it can be
// swapped or detached at any time; pion only ever sees the dispatchers
// installed at construction.
type Connection struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger

	mu          sync.Mutex
	onCandidate func(models.ICECandidate)
	onState     func(call.ConnectionState)
	onTrack     func(kind string)
}

func newConnection(pc *webrtc.PeerConnection, log *slog.Logger) *Connection {
	c := &Connection{pc: pc, log: log}
	c.DetachHandlers()

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if cand == nil {
			return
		}
		c.mu.Lock()
		f := c.onCandidate
		c.mu.Unlock()
		f(candidateToModel(cand.ToJSON()))
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		c.mu.Lock()
		f := c.onState
		c.mu.Unlock()
		f(call.ConnectionState(st.String()))
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go drain(track)
		c.mu.Lock()
		f := c.onTrack
		c.mu.Unlock()
		f(track.Kind().String())
	})

	return c
}

// drain reads the remote track so its buffers never fill. Playback is left
// to whoever replaces this.
func drain(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

func (c *Connection) AttachMedia(m call.LocalMedia) error {
	t, ok := m.(Track)
	if !ok {
		return ErrNotATrack
	}

	sender, err := c.pc.AddTrack(t.Track())
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}

	// RTCP must be read for interceptors like NACK to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *Connection) CreateOffer() (models.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return models.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return descriptionToModel(offer), nil
}

func (c *Connection) CreateAnswer() (models.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return models.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return descriptionToModel(answer), nil
}

func (c *Connection) SetLocalDescription(d models.SessionDescription) error {
	desc, err := descriptionFromModel(d)
	if err != nil {
		return err
	}
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("set local %s: %w", d.Type, err)
	}
	return nil
}

func (c *Connection) SetRemoteDescription(d models.SessionDescription) error {
	desc, err := descriptionFromModel(d)
	if err != nil {
		return err
	}
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote %s: %w", d.Type, err)
	}
	return nil
}

func (c *Connection) Rollback() error {
	if err := c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (c *Connection) AddICECandidate(cand models.ICECandidate) error {
	if err := c.pc.AddICECandidate(candidateFromModel(cand)); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (c *Connection) OnICECandidate(f func(models.ICECandidate)) {
	c.mu.Lock()
	c.onCandidate = f
	c.mu.Unlock()
}

func (c *Connection) OnConnectionStateChange(f func(call.ConnectionState)) {
	c.mu.Lock()
	c.onState = f
	c.mu.Unlock()
}

func (c *Connection) OnTrack(f func(kind string)) {
	c.mu.Lock()
	c.onTrack = f
	c.mu.Unlock()
}

func (c *Connection) DetachHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = func(models.ICECandidate) {}
	c.onState = func(call.ConnectionState) {}
	c.onTrack = func(string) {}
}

func (c *Connection) Close() error {
	if err := c.pc.Close(); err != nil {
		c.log.Debug("peer connection close", sl.Err(err))
		return err
	}
	return nil
}

func descriptionToModel(d webrtc.SessionDescription) models.SessionDescription {
	return models.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func descriptionFromModel(d models.SessionDescription) (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(d.Type)
	if t == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, fmt.Errorf("unknown sdp type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

func candidateToModel(c webrtc.ICECandidateInit) models.ICECandidate {
	return models.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func candidateFromModel(c models.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
