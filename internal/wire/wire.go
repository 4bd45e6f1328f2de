// Package wire holds the JSON shapes exchanged with the upstream health
// stream and turns them into index deltas.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/healthmesh/internal/index"
	"github.com/specialistvlad/healthmesh/internal/node"
	"github.com/tidwall/gjson"
)

// ErrMalformed marks a message whose shape was recognised but whose content
// could not be decoded.
var ErrMalformed = errors.New("wire: malformed message")

// Kind is the classification of an inbound message.
type Kind int

const (
	KeepAlive Kind = iota
	TopologyDelta
	PresenceCount
)

func (k Kind) String() string {
	switch k {
	case TopologyDelta:
		return "delta"
	case PresenceCount:
		return "presence"
	default:
		return "keepalive"
	}
}

// Classify tags a raw message by its discriminating field. Anything that is
// not a JSON object with a "delta" object or a numeric "userCount" is a
// keep-alive, including invalid JSON.
func Classify(raw []byte) Kind {
	if !gjson.ValidBytes(raw) {
		return KeepAlive
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return KeepAlive
	}
	if root.Get("delta").IsObject() {
		return TopologyDelta
	}
	if root.Get("userCount").Type == gjson.Number {
		return PresenceCount
	}
	return KeepAlive
}

// Details identifies an instance.
type Details struct {
	ID          string  `json:"id"`
	ServiceName *string `json:"serviceName,omitempty"`
	Host        *string `json:"host,omitempty"`
}

// NodeState is one entry of a delta's updated or added map.
type NodeState struct {
	Details                *Details        `json:"details,omitempty"`
	HealthStatus           *string         `json:"healthStatus,omitempty"`
	Depends                *[]string       `json:"depends,omitempty"`
	LastPollInstant        *int64          `json:"lastPollInstant,omitempty"`
	LastPollDurationMillis *int64          `json:"lastPollDurationMillis,omitempty"`
	LastPollResult         json.RawMessage `json:"lastPollResult,omitempty"`
}

// Deltas is the body of a topology delta.
type Deltas struct {
	Updated map[string]NodeState `json:"updated,omitempty"`
	Added   map[string]NodeState `json:"added,omitempty"`
	Removed []string             `json:"removed,omitempty"`
}

// Envelope wraps a delta on the wire.
type Envelope struct {
	Delta *Deltas `json:"delta"`
}

// Presence is the connected user count broadcast.
type Presence struct {
	UserCount int `json:"userCount"`
}

// DecodeDelta parses a topology delta message.
func DecodeDelta(raw []byte) (index.Delta, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return index.Delta{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Delta == nil {
		return index.Delta{}, fmt.Errorf("%w: missing delta object", ErrMalformed)
	}

	d := index.Delta{Removed: env.Delta.Removed}
	var err error
	if d.Updated, err = patches(env.Delta.Updated); err != nil {
		return index.Delta{}, err
	}
	if d.Added, err = patches(env.Delta.Added); err != nil {
		return index.Delta{}, err
	}
	return d, nil
}

// DecodePresence parses a presence message.
func DecodePresence(raw []byte) (int, error) {
	v := gjson.GetBytes(raw, "userCount")
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("%w: userCount is not a number", ErrMalformed)
	}
	n := v.Int()
	if n < 0 {
		return 0, fmt.Errorf("%w: negative userCount %d", ErrMalformed, n)
	}
	return int(n), nil
}

func patches(in map[string]NodeState) (map[string]node.Patch, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]node.Patch, len(in))
	for id, st := range in {
		p, err := st.Patch(id)
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

// Patch converts the wire entry keyed by id into a node patch.
func (s NodeState) Patch(id string) (node.Patch, error) {
	var p node.Patch
	if d := s.Details; d != nil {
		if d.ID != "" && d.ID != id {
			return p, fmt.Errorf("%w: key %q carries details.id %q", ErrMalformed, id, d.ID)
		}
		p.ServiceName = d.ServiceName
		p.Host = d.Host
	}
	if s.HealthStatus != nil {
		h, err := node.ParseHealth(*s.HealthStatus)
		if err != nil {
			return p, fmt.Errorf("%w: %q: %v", ErrMalformed, id, err)
		}
		p.Health = &h
	}
	if s.Depends != nil {
		deps := append([]string(nil), *s.Depends...)
		p.Depends = &deps
	}
	if s.LastPollInstant != nil {
		at := time.UnixMilli(*s.LastPollInstant).UTC()
		p.LastPollInstant = &at
	}
	if s.LastPollDurationMillis != nil {
		d := time.Duration(*s.LastPollDurationMillis) * time.Millisecond
		p.LastPollDuration = &d
	}
	if len(s.LastPollResult) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, s.LastPollResult); err != nil {
			return p, fmt.Errorf("%w: %q lastPollResult: %v", ErrMalformed, id, err)
		}
		p.LastPollResult = buf.Bytes()
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("%w: %q: %v", ErrMalformed, id, err)
	}
	return p, nil
}
