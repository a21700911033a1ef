// Package relay forwards opaque signal payloads between identity-addressed
// streams. Delivery is best effort: in order per sender and recipient, at
// most once, never persisted.
package relay

import (
	"context"
	"log/slog"

	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
)

// UserDirectory is the part of the directory the relay needs.
type UserDirectory interface {
	Exists(ctx context.Context, id models.Identity) (bool, error)
}

// Forwarder moves a delivery to every live stream of an identity, wherever
// those streams are attached.
type Forwarder interface {
	Forward(ctx context.Context, to models.Identity, d models.Delivery) error
}

type Relay struct {
	hub *Hub
	dir UserDirectory
	fwd Forwarder
	log *slog.Logger
}

// New builds a relay on hub. A nil fwd forwards through hub directly, which
// is correct for a single instance.
func New(hub *Hub, dir UserDirectory, fwd Forwarder, log *slog.Logger) *Relay {
	if fwd == nil {
		fwd = hub
	}
	if log == nil {
		log = slog.Default()
	}
	return &Relay{hub: hub, dir: dir, fwd: fwd, log: log}
}

// Subscribe binds a new inbound stream to id. The caller must already be
// authenticated as id.
func (r *Relay) Subscribe(id models.Identity) *Subscription {
	return r.hub.Subscribe(id)
}

// Publish forwards msg from the authenticated sender. Messages without a
// recipient or payload, or addressed to an unknown user, are dropped without
// telling the sender.
func (r *Relay) Publish(ctx context.Context, from models.Identity, msg models.Outbound) {
	const op = "relay.publish"
	log := r.log.With(
		slog.String("op", op),
		slog.String("from", string(from)),
		slog.String("to", string(msg.ToIdentity)),
	)

	if msg.ToIdentity == "" || !models.HasPayload(msg.Payload) {
		log.Debug("dropping invalid message")
		return
	}

	exists, err := r.dir.Exists(ctx, msg.ToIdentity)
	if err != nil {
		log.Warn("directory lookup failed, dropping message", sl.Err(err))
		return
	}
	if !exists {
		log.Debug("dropping message for unknown recipient")
		return
	}

	if err := r.fwd.Forward(ctx, msg.ToIdentity, models.Delivery{
		FromIdentity: from,
		Payload:      msg.Payload,
	}); err != nil {
		log.Warn("forward failed", sl.Err(err))
	}
}
