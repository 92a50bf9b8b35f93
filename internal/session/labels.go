package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LabeledValue pairs a class label with a score.
type LabeledValue struct {
	Label string
	Value float64
}

// LabeledValues is a JSON object whose key order is preserved, so
// aggregated predictions serialize in class order.
type LabeledValues []LabeledValue

// Label zips classes with values. Extra values or labels are ignored.
func Label(classes []string, values []float64) LabeledValues {
	n := min(len(classes), len(values))
	out := make(LabeledValues, n)
	for i := range n {
		out[i] = LabeledValue{Label: classes[i], Value: values[i]}
	}
	return out
}

// Get returns the value for label.
func (l LabeledValues) Get(label string) (float64, bool) {
	for _, lv := range l {
		if lv.Label == label {
			return lv.Value, true
		}
	}
	return 0, false
}

// Top returns the highest scoring entry.
func (l LabeledValues) Top() (LabeledValue, bool) {
	if len(l) == 0 {
		return LabeledValue{}, false
	}
	best := l[0]
	for _, lv := range l[1:] {
		if lv.Value > best.Value {
			best = lv
		}
	}
	return best, true
}

// MarshalJSON implements json.Marshaler.
func (l LabeledValues) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, lv := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(lv.Label)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(lv.Value)
		if err != nil {
			return nil, fmt.Errorf("label %q: %w", lv.Label, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping document order.
func (l *LabeledValues) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*l = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("labeled values: expected object, got %v", tok)
	}
	out := LabeledValues{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("labeled values: unexpected key %v", keyTok)
		}
		var value float64
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("labeled values: %q: %w", key, err)
		}
		out = append(out, LabeledValue{Label: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}
