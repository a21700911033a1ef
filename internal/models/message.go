package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Identity is the opaque user identifier the relay addresses streams by.
type Identity string

// PayloadType is the "type" tag carried inside every signal payload.
type PayloadType string

const (
	PayloadTypeOffer  PayloadType = "offer"
	PayloadTypeAnswer PayloadType = "answer"
	PayloadTypeICE    PayloadType = "ice"
	PayloadTypeHangup PayloadType = "hangup"
)

var (
	ErrEmptyPayload       = errors.New("signal payload is empty")
	ErrUnknownPayloadType = errors.New("unknown signal payload type")
	ErrMissingSDP         = errors.New("signal payload missing sdp")
	ErrMissingCandidate   = errors.New("signal payload missing candidate")
)

// Outbound is what a subscriber publishes to the relay.
type Outbound struct {
	ToIdentity Identity        `json:"to_identity"`
	Payload    json.RawMessage `json:"payload"`
}

// Delivery is what the relay hands to every live stream of the recipient.
// Payload is forwarded byte for byte.
type Delivery struct {
	FromIdentity Identity        `json:"from_identity"`
	Payload      json.RawMessage `json:"payload"`
}

// HasPayload reports whether raw carries anything other than whitespace or null.
func HasPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// SessionDescription mirrors RTCSessionDescriptionInit.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Payload is one of Offer, Answer, IceCandidate or Hangup.
type Payload interface {
	Type() PayloadType
	Accept(v PayloadVisitor)
}

// PayloadVisitor must handle every payload variant. Adding a variant adds a
// method here, so every consumer stops compiling until it handles it.
type PayloadVisitor interface {
	VisitOffer(Offer)
	VisitAnswer(Answer)
	VisitIceCandidate(IceCandidate)
	VisitHangup(Hangup)
}

type Offer struct {
	SDP SessionDescription
}

type Answer struct {
	SDP SessionDescription
}

type IceCandidate struct {
	Candidate ICECandidate
}

type Hangup struct{}

func (Offer) Type() PayloadType        { return PayloadTypeOffer }
func (Answer) Type() PayloadType       { return PayloadTypeAnswer }
func (IceCandidate) Type() PayloadType { return PayloadTypeICE }
func (Hangup) Type() PayloadType       { return PayloadTypeHangup }

func (p Offer) Accept(v PayloadVisitor)        { v.VisitOffer(p) }
func (p Answer) Accept(v PayloadVisitor)       { v.VisitAnswer(p) }
func (p IceCandidate) Accept(v PayloadVisitor) { v.VisitIceCandidate(p) }
func (p Hangup) Accept(v PayloadVisitor)       { v.VisitHangup(p) }

// wirePayload is the JSON shape shared by browsers and Go clients.
type wirePayload struct {
	Type      PayloadType         `json:"type"`
	SDP       *SessionDescription `json:"sdp,omitempty"`
	Candidate *ICECandidate       `json:"candidate,omitempty"`
}

// EncodePayload renders p in the wire format.
func EncodePayload(p Payload) (json.RawMessage, error) {
	var w wirePayload
	switch v := p.(type) {
	case Offer:
		sdp := v.SDP
		w = wirePayload{Type: PayloadTypeOffer, SDP: &sdp}
	case Answer:
		sdp := v.SDP
		w = wirePayload{Type: PayloadTypeAnswer, SDP: &sdp}
	case IceCandidate:
		c := v.Candidate
		w = wirePayload{Type: PayloadTypeICE, Candidate: &c}
	case Hangup:
		w = wirePayload{Type: PayloadTypeHangup}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownPayloadType, p)
	}
	return json.Marshal(w)
}

// DecodePayload parses a wire payload into its variant. Offers and answers
// require a non-empty sdp, candidates a candidate object.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	if !HasPayload(raw) {
		return nil, ErrEmptyPayload
	}

	var w wirePayload
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode signal payload: %w", err)
	}

	switch w.Type {
	case PayloadTypeOffer:
		if w.SDP == nil || w.SDP.SDP == "" {
			return nil, ErrMissingSDP
		}
		return Offer{SDP: *w.SDP}, nil
	case PayloadTypeAnswer:
		if w.SDP == nil || w.SDP.SDP == "" {
			return nil, ErrMissingSDP
		}
		return Answer{SDP: *w.SDP}, nil
	case PayloadTypeICE:
		if w.Candidate == nil {
			return nil, ErrMissingCandidate
		}
		return IceCandidate{Candidate: *w.Candidate}, nil
	case PayloadTypeHangup:
		return Hangup{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayloadType, w.Type)
	}
}
