package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoObject is returned by DecodeObject when the text carries no JSON object.
var ErrNoObject = errors.New("jsonutil: no JSON object in text")

const fence = "```"

// ExtractObject isolates the JSON object inside free-form model output.
//
// Contract:
//  1. Surrounding whitespace is trimmed.
//  2. If the text starts with a ``` fence, its first line is dropped
//     (covering ```json and bare ```), and the last line is dropped when it
//     is exactly a closing ``` fence after trimming.
//  3. If a '{' occurs and a '}' occurs after it, the text is sliced from the
//     first '{' to the last '}' inclusive.
//  4. The result is trimmed again.
//
// No other repair is attempted; callers parse the result as-is.
func ExtractObject(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, fence) {
		lines := strings.Split(text, "\n")
		if strings.HasPrefix(lines[0], fence) {
			lines = lines[1:]
		}
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == fence {
			lines = lines[:len(lines)-1]
		}
		text = strings.Join(lines, "\n")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}") + 1
	if start != -1 && end > start {
		text = text[start:end]
	}
	return strings.TrimSpace(text)
}

// DecodeObject applies ExtractObject and unmarshals the result into v.
func DecodeObject(text string, v any) error {
	obj := ExtractObject(text)
	if !strings.HasPrefix(obj, "{") {
		return ErrNoObject
	}
	return UnmarshalFlex([]byte(obj), v)
}

// MarshalNoEscapeIndent encodes v with indentation and without escaping <, >
// and & into < etc. Shell snippets embedded in notebooks stay readable.
func MarshalNoEscapeIndent(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalFlex tries a direct unmarshal first, then retries once with
// double-escaped unicode sequences (\\u003e) normalized.
func UnmarshalFlex(raw []byte, v any) error {
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	if !bytes.Contains(raw, []byte(`\\u`)) {
		return err
	}
	norm := bytes.ReplaceAll(raw, []byte(`\\u`), []byte(`\u`))
	if err2 := json.Unmarshal(norm, v); err2 != nil {
		return err
	}
	return nil
}
