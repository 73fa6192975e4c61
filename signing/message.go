package signing

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyMessage is returned when the artifact carries no message.
	ErrEmptyMessage = errors.New("embedded message is empty")

	// ErrMalformedMessage is returned when the message is not the expected
	// JSON shape. Decoding fails closed: unknown fields are rejected.
	ErrMalformedMessage = errors.New("embedded message is malformed")

	// ErrMissingChallenge is returned when the message carries no challenge.
	ErrMissingChallenge = errors.New("embedded message is missing challenge")
)

// Message is the JSON object round-tripped through the transaction's message
// field. The chain is used purely as an authenticated, client-controlled
// side-channel for this blob; only the fields the flow branches on are
// defined.
type Message struct {
	ClientID            string `json:"client_id,omitempty"`
	Challenge           string `json:"challenge"`
	State               string `json:"state,omitempty"`
	CodeChallenge       string `json:"pkce_challenge,omitempty"`
	CodeChallengeMethod string `json:"pkce_challenge_method,omitempty"`
}

// DecodeMessage parses the embedded message bytes. Any unexpected shape is a
// hard failure; a message without a challenge is rejected.
func DecodeMessage(raw []byte) (*Message, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyMessage
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	// Anything after the JSON object is not a valid message.
	if dec.More() {
		return nil, ErrMalformedMessage
	}
	if msg.Challenge == "" {
		return nil, ErrMissingChallenge
	}
	return &msg, nil
}
