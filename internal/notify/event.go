// Package notify broadcasts store mutations to other sessions working on the
// same election database. Delivery is at-most-once and unordered; a session
// that misses an event re-reads the store instead.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// EventType tags a change notification
type EventType string

const (
	EventVoterUpdated   EventType = "VOTER_UPDATED"
	EventVoteChanged    EventType = "VOTE_CHANGED"
	EventDatabaseUpdate EventType = "DATABASE_UPDATE"
)

// DefaultChannel is the broadcast channel shared by every session
const DefaultChannel = "ossip-database-sync"

// Event is one change notification
type Event struct {
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Origin    string                 `json:"origin"`
}

// VoterUpdated is the payload of EventVoterUpdated
type VoterUpdated struct {
	VoterID int64                  `mapstructure:"voterId"`
	Changes map[string]interface{} `mapstructure:"changes"`
}

// VoteChanged is the payload of EventVoteChanged. A nil candidate id means
// "no vote" on that side of the change.
type VoteChanged struct {
	VoterID        int64  `mapstructure:"voterId"`
	OldCandidateID *int64 `mapstructure:"oldCandidateId"`
	NewCandidateID *int64 `mapstructure:"newCandidateId"`
}

// DatabaseUpdate is the payload of EventDatabaseUpdate
type DatabaseUpdate struct {
	Reason string `mapstructure:"reason"`
}

// NewEvent builds an event whose data is the flattened payload struct
func NewEvent(t EventType, payload interface{}) (Event, error) {
	e := Event{Type: t, Timestamp: time.Now().UTC()}
	if payload == nil {
		return e, nil
	}
	data := make(map[string]interface{})
	if err := mapstructure.Decode(payload, &data); err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	e.Data = data
	return e, nil
}

// Decode copies the event data into out, which is usually one of the
// payload structs of this package. JSON numbers are converted to the
// target field types.
func (e Event) Decode(out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(e.Data); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Listener receives events delivered to a bridge
type Listener func(Event)

// Bridge publishes change notifications to, and receives them from, every
// session sharing the store.
type Bridge interface {
	// Notify stamps the event with the bridge's origin and broadcasts it
	Notify(ctx context.Context, e Event) error
	// OnUpdate registers fn and returns a function that removes it
	OnUpdate(fn Listener) (unsubscribe func())
	// Origin identifies this session in the events it sends
	Origin() string
	Close() error
}

// envelope is the wire format shared by the broker bridges
type envelope struct {
	Action  string `json:"action"`
	Payload Event  `json:"payload"`
}

func wrap(e Event) envelope {
	return envelope{Action: string(EventDatabaseUpdate), Payload: e}
}
