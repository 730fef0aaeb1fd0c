package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for the JSON wire format.
//
// rb_number, data and run_number are scalars for single-run messages and arrays
// for batches. Decoding accepts either shape, and also numeric RB numbers, which
// older producers emit.

type wireMessage struct {
	RBNumber           json.RawMessage `json:"rb_number"`
	Instrument         string          `json:"instrument"`
	Data               json.RawMessage `json:"data"`
	RunNumber          json.RawMessage `json:"run_number"`
	RunTitle           string          `json:"run_title"`
	Facility           string          `json:"facility"`
	StartedBy          int             `json:"started_by"`
	ReductionArguments map[string]any  `json:"reduction_arguments"`
	Description        string          `json:"description"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	rb, err := marshalScalarOrList(m.RBNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rb_number: %w", err)
	}
	data, err := marshalScalarOrList(m.Locations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	runs, err := marshalScalarOrList(m.RunNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run_number: %w", err)
	}

	args := m.ReductionArguments
	if args == nil {
		args = map[string]any{}
	}

	return json.Marshal(wireMessage{
		RBNumber:           rb,
		Instrument:         m.Instrument,
		Data:               data,
		RunNumber:          runs,
		RunTitle:           m.RunTitle,
		Facility:           m.Facility,
		StartedBy:          m.StartedBy,
		ReductionArguments: args,
		Description:        m.Description,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(b []byte) error {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	rbs, err := decodeRBNumbers(w.RBNumber)
	if err != nil {
		return fmt.Errorf("failed to unmarshal rb_number: %w", err)
	}
	var locations []string
	if err := unmarshalScalarOrList(w.Data, &locations); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	var runs []int
	if err := unmarshalScalarOrList(w.RunNumber, &runs); err != nil {
		return fmt.Errorf("failed to unmarshal run_number: %w", err)
	}

	*m = Message{
		RBNumbers:          rbs,
		Instrument:         w.Instrument,
		Locations:          locations,
		RunNumbers:         runs,
		RunTitle:           w.RunTitle,
		Facility:           w.Facility,
		StartedBy:          w.StartedBy,
		ReductionArguments: w.ReductionArguments,
		Description:        w.Description,
	}
	if m.ReductionArguments == nil {
		m.ReductionArguments = map[string]any{}
	}
	return nil
}

// Serialize returns the canonical (compact JSON) form of the message.
func (m *Message) Serialize() ([]byte, error) {
	return json.Marshal(m)
}

// SerializeIndent returns an indented form of the message for display.
func (m *Message) SerializeIndent() (string, error) {
	b, err := json.MarshalIndent(m, "", " ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Deserialize parses a message from its wire form.
func Deserialize(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %w", err)
	}
	return &m, nil
}

func marshalScalarOrList[T any](values []T) (json.RawMessage, error) {
	switch len(values) {
	case 0:
		return json.RawMessage("null"), nil
	case 1:
		return json.Marshal(values[0])
	default:
		return json.Marshal(values)
	}
}

func unmarshalScalarOrList[T any](raw json.RawMessage, out *[]T) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*out = nil
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, out)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*out = []T{v}
	return nil
}

// decodeRBNumbers accepts strings or numbers, alone or in an array.
func decodeRBNumbers(raw json.RawMessage) ([]string, error) {
	var items []json.RawMessage
	if err := unmarshalScalarOrList(raw, &items); err != nil {
		return nil, err
	}

	rbs := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			rbs = append(rbs, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err != nil {
			return nil, fmt.Errorf("rb_number must be a string or number, got %s", string(item))
		}
		if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
			return nil, fmt.Errorf("rb_number must be an integer, got %s", n.String())
		}
		rbs = append(rbs, n.String())
	}
	if len(rbs) == 0 {
		return nil, nil
	}
	return rbs, nil
}
