package models

import (
	"encoding/json"
	"time"
)

// IncomingOfferRecord keeps an unanswered offer alive across a page
// navigation. At most one record exists per sender.
type IncomingOfferRecord struct {
	FromIdentity Identity        `json:"from_identity"`
	Payload      json.RawMessage `json:"payload"`
	ReceivedAt   time.Time       `json:"received_at"`
}

// Offer decodes the stored payload. Records holding anything other than an
// offer are treated as absent by callers.
func (r IncomingOfferRecord) Offer() (Offer, bool) {
	p, err := DecodePayload(r.Payload)
	if err != nil {
		return Offer{}, false
	}
	offer, ok := p.(Offer)
	return offer, ok
}
