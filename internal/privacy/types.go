package privacy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Finding summarises one PII category found in a text. It never carries the
// matched values.
type Finding struct {
	EntityType string `json:"entity_type"`
	Label      string `json:"label"`
	Count      int    `json:"count"`
	Distinct   int    `json:"distinct"`
}

// ProcessResult contains the result of redacting a text
type ProcessResult struct {
	SanitisedText string    `json:"sanitised_text"`
	Mapping       Mapping   `json:"-"` // Never serialize original values alongside findings
	Findings      []Finding `json:"findings"`
}

// Entry is one placeholder and the original value it stands for
type Entry struct {
	Placeholder string `json:"placeholder"`
	Original    string `json:"original"`
}

// Mapping is an insertion-ordered placeholder → original table. The zero
// value is an empty mapping. It is owned by the caller and never retained by
// the redactor.
type Mapping struct {
	entries []Entry
	index   map[string]int
}

// NewMapping builds a mapping from entries. A repeated placeholder keeps its
// first position and takes the last value.
func NewMapping(entries ...Entry) Mapping {
	var m Mapping
	for _, e := range entries {
		m.Set(e.Placeholder, e.Original)
	}
	return m
}

// Set adds or replaces a placeholder
func (m *Mapping) Set(placeholder, original string) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[placeholder]; ok {
		m.entries[i].Original = original
		return
	}
	m.index[placeholder] = len(m.entries)
	m.entries = append(m.entries, Entry{Placeholder: placeholder, Original: original})
}

// Get returns the original value for a placeholder
func (m Mapping) Get(placeholder string) (string, bool) {
	i, ok := m.index[placeholder]
	if !ok {
		return "", false
	}
	return m.entries[i].Original, true
}

// Len returns the number of placeholders
func (m Mapping) Len() int {
	return len(m.entries)
}

// Entries returns a copy of the entries in insertion order
func (m Mapping) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Placeholders returns the placeholder keys in insertion order
func (m Mapping) Placeholders() []string {
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Placeholder
	}
	return keys
}

// ToMap returns an unordered copy
func (m Mapping) ToMap() map[string]string {
	out := make(map[string]string, len(m.entries))
	for _, e := range m.entries {
		out[e.Placeholder] = e.Original
	}
	return out
}

// MarshalJSON encodes the mapping as a JSON object whose keys keep insertion order
func (m Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // placeholders are written with angle brackets

	buf.WriteByte('{')
	for i, e := range m.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(e.Placeholder); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
		buf.WriteByte(':')
		if err := enc.Encode(e.Original); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the order of its keys
func (m *Mapping) UnmarshalJSON(data []byte) error {
	*m = Mapping{}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to decode mapping: %w", err)
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("mapping must be a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to decode mapping key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("mapping key must be a string")
		}

		var value *string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("mapping value for %q must be a string: %w", key, err)
		}
		if value == nil {
			return fmt.Errorf("mapping value for %q must be a string, got null", key)
		}
		m.Set(key, *value)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to decode mapping: %w", err)
	}
	return nil
}
