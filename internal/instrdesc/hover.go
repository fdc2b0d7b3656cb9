package instrdesc

import (
	"unicode"
)

// Hover is the tooltip content for the instruction under the cursor.
type Hover struct {
	From        int         `json:"from"`
	To          int         `json:"to"`
	Word        string      `json:"word"`
	Description Description `json:"description"`
}

func isWordRune(r rune) bool {
	return r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// WordAt returns the word around offset pos in text, offsets counted in code points.
// Words consist of ASCII letters, digits and underscores and never cross a line.
// side selects how a cursor sitting on a word boundary binds: a negative side
// rejects a word starting at pos, a positive side rejects a word ending at pos.
func WordAt(text string, pos, side int) (word string, from, to int, ok bool) {
	runes := []rune(text)
	if pos < 0 || pos > len(runes) {
		return "", 0, 0, false
	}

	start, end := pos, pos
	for start > 0 && runes[start-1] != '\n' && isWordRune(runes[start-1]) {
		start--
	}
	for end < len(runes) && runes[end] != '\n' && isWordRune(runes[end]) {
		end++
	}

	if start == end || (start == pos && side < 0) || (end == pos && side > 0) {
		return "", 0, 0, false
	}
	return string(runes[start:end]), start, end, true
}

// Hover looks up the instruction under the cursor. It returns nil when the cursor
// is not on a known instruction.
func (s *Service) Hover(text string, pos, side int) (*Hover, error) {
	word, from, to, ok := WordAt(text, pos, side)
	if !ok {
		// still surface NOT_LOADED to the caller
		if _, err := s.table(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	d, found, err := s.Lookup(word)
	if err != nil || !found {
		return nil, err
	}
	return &Hover{From: from, To: to, Word: word, Description: d}, nil
}
