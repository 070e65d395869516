package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// LocateJSON returns the receipt object embedded in a model response.
// Only outermost objects are considered: prose, markdown fences and
// balanced stray blocks before it are skipped, but an object that never
// closes ends the search so nothing nested inside it can be picked up.
// The object must carry at least one receipt key (or a known synonym).
func LocateJSON(s string) ([]byte, bool) {
	for i := 0; i < len(s); {
		j := strings.IndexByte(s[i:], '{')
		if j < 0 {
			return nil, false
		}
		i += j

		end, ok := matchBrace(s, i)
		if !ok {
			// truncated or unbalanced; everything after i is inside it
			return nil, false
		}
		block := s[i : end+1]
		if raw, ok := decodeObject(block); ok && hasReceiptKey(raw) {
			return raw, true
		}
		i = end + 1
	}
	return nil, false
}

// matchBrace returns the index of the '}' closing the '{' at start,
// ignoring braces inside JSON strings.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for k := start; k < len(s); k++ {
		c := s[k]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return k, true
			}
		}
	}
	return 0, false
}

func decodeObject(block string) (json.RawMessage, bool) {
	dec := json.NewDecoder(strings.NewReader(block))
	dec.UseNumber()
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil || !bytes.HasPrefix(raw, []byte("{")) {
		return nil, false
	}
	return raw, true
}

func hasReceiptKey(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	for k := range m {
		if _, ok := receiptKeys[k]; ok {
			return true
		}
		for _, r := range receiptRenames {
			if r[0] == k {
				return true
			}
		}
	}
	return false
}
