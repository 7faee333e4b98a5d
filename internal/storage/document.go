package storage

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-isleborn/internal/owner"
)

// Fields a write can leave unset.
const (
	FieldOwnerName = "owner_name"
	FieldLevel     = "level"
	FieldState     = "state"
)

var fields = []string{FieldOwnerName, FieldLevel, FieldState}

// Document is the persisted island for one owner. Every tier stores exactly
// this shape.
type Document struct {
	Owner     owner.ID        `json:"owner"`
	OwnerName string          `json:"owner_name"`
	Level     int             `json:"level"`
	// State belongs to the caller and is carried through untouched.
	State     json.RawMessage `json:"state,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
	// Unset names fields that were written without knowing the stored copy.
	// They hold defaults until they are filled from that copy.
	Unset     []string        `json:"unset,omitempty"`
}

func (d *Document) Validate() error {
	el := errors.NewErrorList()

	if d.Owner == "" {
		el.Add(fmt.Errorf("owner must be set"))
	} else if _, err := owner.Parse(d.Owner.String()); err != nil {
		el.Add(err)
	}

	if len(d.State) > 0 && !json.Valid(d.State) {
		el.Add(fmt.Errorf("state must be valid json"))
	}

	for _, f := range d.Unset {
		if !slices.Contains(fields, f) {
			el.Add(fmt.Errorf("unknown unset field %q", f))
		}
	}

	return el.Err()
}

// Clone returns a copy that shares no memory with d.
func (d Document) Clone() Document {
	d.State = slices.Clone(d.State)
	d.Unset = slices.Clone(d.Unset)
	return d
}

// NewerThan reports whether d was written after o.
func (d Document) NewerThan(o Document) bool {
	return d.UpdatedAt.After(o.UpdatedAt)
}

// Fill takes every unset field of d from o and clears the unset list.
func (d Document) Fill(o Document) Document {
	d = d.Clone()
	for _, f := range d.Unset {
		switch f {
		case FieldOwnerName:
			d.OwnerName = o.OwnerName
		case FieldLevel:
			d.Level = o.Level
		case FieldState:
			d.State = slices.Clone(o.State)
		}
	}
	d.Unset = nil
	return d
}

// encoded is the byte form tiers that keep whole JSON documents use. State
// is embedded as a string so it comes back byte for byte.
type encoded struct {
	Owner     owner.ID  `json:"owner"`
	OwnerName string    `json:"owner_name"`
	Level     int       `json:"level"`
	State     string    `json:"state,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Unset     []string  `json:"unset,omitempty"`
}

// Encode renders doc as JSON, indented when indent is set.
func Encode(doc Document, indent bool) ([]byte, error) {
	e := encoded{
		Owner:     doc.Owner,
		OwnerName: doc.OwnerName,
		Level:     doc.Level,
		State:     string(doc.State),
		UpdatedAt: doc.UpdatedAt,
		Unset:     doc.Unset,
	}
	if indent {
		return json.MarshalIndent(e, "", "  ")
	}
	return json.Marshal(e)
}

// Decode parses what Encode wrote. Documents whose state is inline JSON
// rather than a string are accepted as they are.
func Decode(data []byte) (Document, error) {
	var raw struct {
		encoded
		State json.RawMessage `json:"state,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, err
	}

	doc := Document{
		Owner:     raw.Owner,
		OwnerName: raw.OwnerName,
		Level:     raw.Level,
		UpdatedAt: raw.UpdatedAt,
		Unset:     raw.Unset,
	}
	switch {
	case len(raw.State) == 0, string(raw.State) == "null":
	case raw.State[0] == '"':
		var s string
		if err := json.Unmarshal(raw.State, &s); err == nil && json.Valid([]byte(s)) {
			doc.State = json.RawMessage(s)
		} else {
			doc.State = slices.Clone(raw.State)
		}
	default:
		doc.State = slices.Clone(raw.State)
	}
	return doc, nil
}
