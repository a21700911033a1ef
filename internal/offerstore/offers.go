package offerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mossy-p/webrtc-calling/internal/models"
)

const incomingOfferPrefix = "call:incoming_offer:"

// IncomingOffers stores at most one IncomingOfferRecord per caller. Saving a
// newer offer from the same caller supersedes the old one.
type IncomingOffers struct {
	store Store
	ttl   time.Duration
}

func NewIncomingOffers(store Store, ttl time.Duration) *IncomingOffers {
	return &IncomingOffers{store: store, ttl: ttl}
}

func incomingOfferKey(from models.Identity) string {
	return incomingOfferPrefix + string(from)
}

func (o *IncomingOffers) Save(ctx context.Context, rec models.IncomingOfferRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal offer record: %w", err)
	}
	return o.store.Put(ctx, incomingOfferKey(rec.FromIdentity), data, o.ttl)
}

// Load returns the record for from, if one is stored. A record that no longer
// decodes is treated as absent.
func (o *IncomingOffers) Load(ctx context.Context, from models.Identity) (models.IncomingOfferRecord, bool, error) {
	data, ok, err := o.store.Get(ctx, incomingOfferKey(from))
	if err != nil || !ok {
		return models.IncomingOfferRecord{}, false, err
	}

	var rec models.IncomingOfferRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.IncomingOfferRecord{}, false, nil
	}
	if _, ok := rec.Offer(); !ok {
		return models.IncomingOfferRecord{}, false, nil
	}
	return rec, true, nil
}

func (o *IncomingOffers) Clear(ctx context.Context, from models.Identity) error {
	return o.store.Delete(ctx, incomingOfferKey(from))
}
