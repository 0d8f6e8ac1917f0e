// File: internal/decode/decode.go
// Description: Strict extraction of structured payloads from free-form oracle
// text. Oracle responses are untrusted input: they may wrap JSON in prose or
// markdown fences, truncate mid-value, or emit unexpected shapes. The
// functions here locate the first balanced JSON value of the expected shape
// and parse it, classifying every failure into a typed DecodeError. They are
// pure functions of their input text.
package decode

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Object extracts and parses the first balanced JSON object embedded in raw.
// On any failure it returns a DecodeError and never a partially-filled value.
func Object[T any](raw string) (*T, error) {
	snippet, err := extract(raw, '{', '}')
	if err != nil {
		return nil, err
	}
	var result T
	if err := jsonAPI.UnmarshalFromString(snippet, &result); err != nil {
		// Syntax was already validated during extraction, so remaining
		// unmarshal failures are shape problems (wrong field types).
		return nil, schemas.NewDecodeError(schemas.DecodeSchemaMismatch,
			"%v (payload: %s)", err, truncate(snippet, 500))
	}
	return &result, nil
}

// Array extracts and parses the first balanced JSON array embedded in raw.
func Array[T any](raw string) ([]T, error) {
	snippet, err := extract(raw, '[', ']')
	if err != nil {
		return nil, err
	}
	var result []T
	if err := jsonAPI.UnmarshalFromString(snippet, &result); err != nil {
		return nil, schemas.NewDecodeError(schemas.DecodeSchemaMismatch,
			"%v (payload: %s)", err, truncate(snippet, 500))
	}
	return result, nil
}

// extract scans raw for the first balanced value delimited by open/close that
// is also syntactically valid JSON. Candidates that never close or fail
// validation are skipped in favor of later occurrences, so a stray bracket in
// surrounding prose does not poison the real payload.
func extract(raw string, open, close byte) (string, error) {
	sawCandidate := false
	for start := 0; start < len(raw); start++ {
		if raw[start] != open {
			continue
		}
		sawCandidate = true

		end, ok := scanBalanced(raw, start, open, close)
		if !ok {
			continue
		}
		snippet := raw[start : end+1]
		if !json.Valid([]byte(snippet)) {
			continue
		}
		return snippet, nil
	}

	if !sawCandidate {
		return "", schemas.NewDecodeError(schemas.DecodeNoJSONFound,
			"no %c...%c value in response (%s)", open, close, truncate(raw, 200))
	}
	return "", schemas.NewDecodeError(schemas.DecodeMalformedJSON,
		"unbalanced or invalid %c...%c value in response (%s)", open, close, truncate(raw, 200))
}

// scanBalanced walks raw from position start (which holds open) and returns
// the index of the matching close delimiter. The walk is string-aware: braces
// inside JSON string literals, including escaped quotes, do not affect depth.
func scanBalanced(raw string, start int, open, close byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(raw); i++ {
		c := raw[i]
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
