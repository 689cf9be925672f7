package openalex

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IndexTerm is one word of an abstract inverted index.
type IndexTerm struct {
	Word      string
	Positions []int
}

// InvertedIndex is an abstract_inverted_index with its words in response
// order. When two words claim the same position the later one wins, so
// the order has to survive decoding.
type InvertedIndex []IndexTerm

// Positions returns the positions recorded for word, or nil.
func (x InvertedIndex) Positions(word string) []int {
	for _, term := range x {
		if term.Word == word {
			return term.Positions
		}
	}
	return nil
}

// UnmarshalJSON decodes a JSON object keeping key order. A null index
// decodes to nil.
func (x *InvertedIndex) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("abstract_inverted_index: %w", err)
	}
	if tok == nil {
		*x = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("abstract_inverted_index: expected object, got %v", tok)
	}

	var out InvertedIndex
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("abstract_inverted_index: %w", err)
		}
		word, _ := tok.(string)
		var positions []int
		if err := dec.Decode(&positions); err != nil {
			return fmt.Errorf("abstract_inverted_index[%q]: %w", word, err)
		}
		out = append(out, IndexTerm{Word: word, Positions: positions})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("abstract_inverted_index: %w", err)
	}

	*x = out
	return nil
}

// MarshalJSON encodes the index as a JSON object in term order.
func (x InvertedIndex) MarshalJSON() ([]byte, error) {
	if x == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, term := range x {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(term.Word)
		if err != nil {
			return nil, err
		}
		positions, err := json.Marshal(term.Positions)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(positions)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
