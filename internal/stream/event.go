// Package stream is the client side of the backend's push channel: a
// websocket carrying JSON frames of the form {"event": name, "data": payload}.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nfrund/weatherdash/internal/domain"
)

// Kind is the normalised name of a push event.
type Kind string

const (
	KindLatest  Kind = "latest_data"
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
)

// Wire names, as emitted by the backend.
const (
	WireLatest  = "latest_data"
	WireCreated = "send_newdata"
	WireUpdated = "edit_data"
	WireDeleted = "delete_data"
)

var kindsByWireName = map[string]Kind{
	WireLatest:          KindLatest,
	WireCreated:         KindCreated,
	WireUpdated:         KindUpdated,
	WireDeleted:         KindDeleted,
	string(KindCreated): KindCreated,
	string(KindUpdated): KindUpdated,
	string(KindDeleted): KindDeleted,
}

var (
	// ErrUnknownEvent is returned for frames whose event name is not handled.
	ErrUnknownEvent = errors.New("unknown stream event")
	// ErrMalformedFrame is returned for frames that cannot be decoded.
	ErrMalformedFrame = errors.New("malformed stream frame")
)

// Event is a decoded push event. Which field is set depends on Kind:
// Records for KindLatest, Record for created/updated, ID for deleted.
type Event struct {
	Kind    Kind
	Record  domain.WeatherRecord
	Records []domain.WeatherRecord
	ID      int
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ParseFrame decodes one websocket message.
func ParseFrame(msg []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	kind, ok := kindsByWireName[f.Event]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}

	ev := Event{Kind: kind}
	var err error
	switch kind {
	case KindLatest:
		err = json.Unmarshal(f.Data, &ev.Records)
	case KindCreated, KindUpdated:
		err = json.Unmarshal(f.Data, &ev.Record)
	case KindDeleted:
		ev.ID, err = parseID(f.Data)
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, kind, err)
	}
	return ev, nil
}

// parseID accepts a bare id (number or numeric string) or an object with an
// "id" field.
func parseID(data json.RawMessage) (int, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0, errors.New("missing id")
	}

	switch data[0] {
	case '{':
		var obj struct {
			ID *int `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return 0, err
		}
		if obj.ID == nil {
			return 0, errors.New("missing id")
		}
		return *obj.ID, nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
		return strconv.Atoi(s)
	default:
		var id int
		err := json.Unmarshal(data, &id)
		return id, err
	}
}

// EncodeFrame builds a frame with the given wire name and payload.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Event: event, Data: raw})
}
