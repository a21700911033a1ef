package call

import (
	"context"
	"sync"

	"github.com/mossy-p/webrtc-calling/internal/models"
)

type fakeMedia struct {
	mu      sync.Mutex
	stopped int
}

func (m *fakeMedia) Stop() {
	m.mu.Lock()
	m.stopped++
	m.mu.Unlock()
}

func (m *fakeMedia) stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type fakeMediaSource struct {
	mu       sync.Mutex
	err      error
	acquired []*fakeMedia
}

func (f *fakeMediaSource) AcquireAudio(context.Context) (LocalMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m := &fakeMedia{}
	f.acquired = append(f.acquired, m)
	return m, nil
}

func (f *fakeMediaSource) last() *fakeMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.acquired) == 0 {
		return nil
	}
	return f.acquired[len(f.acquired)-1]
}

// fakeConn records every engine call in order.
type fakeConn struct {
	mu       sync.Mutex
	calls    []string
	closed   int
	detached bool
	failOn   map[string]error

	onCandidate func(models.ICECandidate)
	onState     func(ConnectionState)
	onTrack     func(string)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		failOn:      map[string]error{},
		onCandidate: func(models.ICECandidate) {},
		onState:     func(ConnectionState) {},
		onTrack:     func(string) {},
	}
}

func (c *fakeConn) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	name := call
	for i, r := range call {
		if r == ':' {
			name = call[:i]
			break
		}
	}
	return c.failOn[name]
}

func (c *fakeConn) AttachMedia(LocalMedia) error { return c.record("attach") }

func (c *fakeConn) CreateOffer() (models.SessionDescription, error) {
	return models.SessionDescription{Type: "offer", SDP: "local-offer"}, c.record("createOffer")
}

func (c *fakeConn) CreateAnswer() (models.SessionDescription, error) {
	return models.SessionDescription{Type: "answer", SDP: "local-answer"}, c.record("createAnswer")
}

func (c *fakeConn) SetLocalDescription(d models.SessionDescription) error {
	return c.record("setLocal:" + d.SDP)
}

func (c *fakeConn) SetRemoteDescription(d models.SessionDescription) error {
	return c.record("setRemote:" + d.SDP)
}

func (c *fakeConn) Rollback() error { return c.record("rollback") }

func (c *fakeConn) AddICECandidate(cand models.ICECandidate) error {
	return c.record("addIce:" + cand.Candidate)
}

func (c *fakeConn) OnICECandidate(f func(models.ICECandidate)) {
	c.mu.Lock()
	c.onCandidate = f
	c.mu.Unlock()
}

func (c *fakeConn) OnConnectionStateChange(f func(ConnectionState)) {
	c.mu.Lock()
	c.onState = f
	c.mu.Unlock()
}

func (c *fakeConn) OnTrack(f func(string)) {
	c.mu.Lock()
	c.onTrack = f
	c.mu.Unlock()
}

func (c *fakeConn) DetachHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
	c.onCandidate = func(models.ICECandidate) {}
	c.onState = func(ConnectionState) {}
	c.onTrack = func(string) {}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) fireCandidate(cand string) {
	c.mu.Lock()
	f := c.onCandidate
	c.mu.Unlock()
	f(models.ICECandidate{Candidate: cand})
}

func (c *fakeConn) fireState(st ConnectionState) {
	c.mu.Lock()
	f := c.onState
	c.mu.Unlock()
	f(st)
}

func (c *fakeConn) history() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeFactory struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (f *fakeFactory) NewConnection(context.Context) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := newFakeConn()
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeFactory) conn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[0]
}

type sent struct {
	To      models.Identity
	Payload models.Payload
}

type fakeSignaler struct {
	mu     sync.Mutex
	sent   []sent
	failOn map[models.PayloadType]error
}

func (f *fakeSignaler) Send(_ context.Context, to models.Identity, p models.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[p.Type()]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{To: to, Payload: p})
	return nil
}

func (f *fakeSignaler) types() []models.PayloadType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PayloadType, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.Payload.Type())
	}
	return out
}

func (f *fakeSignaler) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		panic("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func (c *fakeConn) isDetached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detached
}
