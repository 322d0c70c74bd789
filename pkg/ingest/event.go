package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the closed set of events the bike controller sends
type Kind int

const (
	// KindUnknown is any event tag we do not recognize
	KindUnknown Kind = iota
	// KindPoweredOn fires when the controller boots
	KindPoweredOn
	// KindStartSession fires when pedaling begins after idle
	KindStartSession
	// KindEndSession fires when pedaling stops
	KindEndSession
	// KindNewData carries one telemetry sample
	KindNewData
)

// KindString returns a Kind from its wire tag
func KindString(s string) (Kind, error) {
	switch s {
	case "powered_on":
		return KindPoweredOn, nil
	case "start_session":
		return KindStartSession, nil
	case "end_session":
		return KindEndSession, nil
	case "new_data":
		return KindNewData, nil
	default:
		return KindUnknown, fmt.Errorf("unknown event tag: %v", s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindPoweredOn:
		return "powered_on"
	case KindStartSession:
		return "start_session"
	case KindEndSession:
		return "end_session"
	case KindNewData:
		return "new_data"
	default:
		return "unknown"
	}
}

// MarshalJSON writes the wire tag
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", k.String())), nil
}

// UnmarshalJSON reads a wire tag. Unrecognized tags become KindUnknown
// rather than an error; rejecting them is the policy's job, not the codec's.
func (k *Kind) UnmarshalJSON(data []byte) error {
	tag := strings.Trim(string(data), `"`)
	kind, err := KindString(tag)
	if err != nil {
		*k = KindUnknown
		return nil
	}
	*k = kind
	return nil
}

// Event is one decoded webhook delivery from the bike controller
type Event struct {
	Kind Kind
	// Name is the raw event tag as sent, kept for the reply on unknown events
	Name string
	// T is the controller's unix-second timestamp
	T int64
	// IP is the controller's public IP, sent with start_session only
	IP string
	// Telemetry fields, sent with new_data only
	SpeedMPH   float64
	Resistance int
	HeartBPM   float64
}

type wireEvent struct {
	Event      string  `json:"event"`
	T          int64   `json:"t"`
	IP         string  `json:"ip"`
	BikeMPH    float64 `json:"bike_mph"`
	Resistance int     `json:"resistance"`
	HeartBPM   float64 `json:"heart_bpm"`
}

// UnmarshalJSON decodes the controller's payload format
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, err := KindString(w.Event)
	if err != nil {
		kind = KindUnknown
	}
	*e = Event{
		Kind:       kind,
		Name:       w.Event,
		T:          w.T,
		IP:         w.IP,
		SpeedMPH:   w.BikeMPH,
		Resistance: w.Resistance,
		HeartBPM:   w.HeartBPM,
	}
	return nil
}

// MarshalJSON writes the controller's payload format
func (e Event) MarshalJSON() ([]byte, error) {
	name := e.Name
	if name == "" {
		name = e.Kind.String()
	}
	return json.Marshal(wireEvent{
		Event:      name,
		T:          e.T,
		IP:         e.IP,
		BikeMPH:    e.SpeedMPH,
		Resistance: e.Resistance,
		HeartBPM:   e.HeartBPM,
	})
}
