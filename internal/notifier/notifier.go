// Package notifier watches the relay stream of a tab for unsolicited offers
// and hands accepted ones to a call page.
package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
)

// Prompter asks the user whether to take a call.
type Prompter interface {
	ConfirmIncoming(ctx context.Context, from models.Identity) bool
}

// Navigator opens the call page for peer. incoming marks that an offer from
// peer is waiting to be answered.
type Navigator interface {
	OpenCall(peer models.Identity, incoming bool) error
}

// ActivePage reports whether a call page is currently shown.
type ActivePage interface {
	CallActive() bool
}

type OfferSaver interface {
	Save(ctx context.Context, rec models.IncomingOfferRecord) error
}

type Notifier struct {
	offers   OfferSaver
	prompter Prompter
	nav      Navigator
	page     ActivePage
	log      *slog.Logger
	now      func() time.Time
}

func New(offers OfferSaver, prompter Prompter, nav Navigator, page ActivePage, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		offers:   offers,
		prompter: prompter,
		nav:      nav,
		page:     page,
		log:      log.With(slog.String("op", "notifier")),
		now:      time.Now,
	}
}

// Run handles deliveries until ctx is done or the channel closes.
func (n *Notifier) Run(ctx context.Context, deliveries <-chan models.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			n.Handle(ctx, d)
		}
	}
}

// Handle reacts to one delivery. Only offers arriving while no call page is
// active are stored and offered to the user.
func (n *Notifier) Handle(ctx context.Context, d models.Delivery) {
	p, err := models.DecodePayload(d.Payload)
	if err != nil {
		return
	}
	if _, ok := p.(models.Offer); !ok {
		return
	}
	if n.page.CallActive() {
		return
	}

	log := n.log.With(slog.String("from", string(d.FromIdentity)))

	rec := models.IncomingOfferRecord{
		FromIdentity: d.FromIdentity,
		Payload:      d.Payload,
		ReceivedAt:   n.now().UTC(),
	}
	if err := n.offers.Save(ctx, rec); err != nil {
		log.Error("failed to store incoming offer", sl.Err(err))
		return
	}
	log.Info("incoming call")

	if !n.prompter.ConfirmIncoming(ctx, d.FromIdentity) {
		log.Info("incoming call declined")
		return
	}
	if err := n.nav.OpenCall(d.FromIdentity, true); err != nil {
		log.Error("failed to open call page", sl.Err(err))
	}
}
