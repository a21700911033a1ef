package call

import (
	"context"

	"github.com/mossy-p/webrtc-calling/internal/models"
)

// ConnectionState is the transport's aggregate connection state.
type ConnectionState string

const (
	ConnectionNew          ConnectionState = "new"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
	ConnectionClosed       ConnectionState = "closed"
)

// Connection is one peer connection of the media transport engine.
// Callbacks may fire on any goroutine.
type Connection interface {
	AttachMedia(m LocalMedia) error
	CreateOffer() (models.SessionDescription, error)
	CreateAnswer() (models.SessionDescription, error)
	SetLocalDescription(d models.SessionDescription) error
	SetRemoteDescription(d models.SessionDescription) error
	// Rollback discards a local offer that has not been answered.
	Rollback() error
	AddICECandidate(c models.ICECandidate) error

	OnICECandidate(f func(models.ICECandidate))
	OnConnectionStateChange(f func(ConnectionState))
	OnTrack(f func(kind string))
	// DetachHandlers replaces every registered callback with a no-op.
	DetachHandlers()
	Close() error
}

type ConnectionFactory interface {
	NewConnection(ctx context.Context) (Connection, error)
}

// LocalMedia is a captured microphone track.
type LocalMedia interface {
	Stop()
}

// MediaSource captures microphone-only audio. Errors should wrap
// ErrPermissionDenied, ErrNoDevice or ErrDeviceBusy where they apply.
type MediaSource interface {
	AcquireAudio(ctx context.Context) (LocalMedia, error)
}

// Signaler publishes a payload to the peer through the relay.
type Signaler interface {
	Send(ctx context.Context, to models.Identity, p models.Payload) error
}

// OfferRecords holds the pending incoming offer per caller.
type OfferRecords interface {
	Load(ctx context.Context, from models.Identity) (models.IncomingOfferRecord, bool, error)
	Save(ctx context.Context, rec models.IncomingOfferRecord) error
	Clear(ctx context.Context, from models.Identity) error
}
