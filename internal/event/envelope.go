// Package event defines the wire data model for pushed notifications.
//
// Every frame on the realtime channel is an encoded Envelope: a kind
// discriminator plus a kind-specific payload the transport treats as opaque.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the typed wrapper around any pushed notification.
type Envelope struct {
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	IssuedAt time.Time       `json:"issuedAt"`
}

// KindAuth marks the handshake frame, the first client-to-server frame that
// claims an identity.
const KindAuth = "auth"

// Claim is the payload of the handshake frame. Token is optional; the server
// verifies it only when configured with a signing secret.
type Claim struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Token  string `json:"token,omitempty"`
}

// DecodeError reports a malformed frame. Callers must not tear down the
// connection on a bad frame: log and keep serving.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed envelope: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// New builds an envelope for kind, marshalling payload. A nil payload yields
// an envelope with no payload field.
func New(kind string, payload any, issuedAt time.Time) (Envelope, error) {
	env := Envelope{Kind: kind, IssuedAt: issuedAt}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to marshal %q payload: %w", kind, err)
		}
		env.Payload = data
	}
	return env, nil
}

// Encode serializes an envelope for the wire. An empty kind is a programming
// error and is rejected.
func Encode(env Envelope) ([]byte, error) {
	if env.Kind == "" {
		return nil, fmt.Errorf("envelope kind must not be empty")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a wire frame into an envelope. Malformed input or an empty
// kind yields a *DecodeError.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, &DecodeError{Cause: err}
	}
	if env.Kind == "" {
		return Envelope{}, &DecodeError{Cause: fmt.Errorf("missing kind")}
	}
	return env, nil
}

// DecodeClaim extracts the identity claim from a handshake envelope.
func DecodeClaim(env Envelope) (Claim, error) {
	if env.Kind != KindAuth {
		return Claim{}, &DecodeError{Cause: fmt.Errorf("expected %q frame, got %q", KindAuth, env.Kind)}
	}
	var claim Claim
	if err := json.Unmarshal(env.Payload, &claim); err != nil {
		return Claim{}, &DecodeError{Cause: err}
	}
	if claim.UserID == "" {
		return Claim{}, &DecodeError{Cause: fmt.Errorf("missing userId")}
	}
	return claim, nil
}
