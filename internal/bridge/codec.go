package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// request is one call on the wire: {"func": name, "args": [...]}.
type request struct {
	Func string `json:"func"`
	Args []any  `json:"args"`
}

// encodeRequest serializes a call as a single newline-terminated JSON line.
func encodeRequest(fn string, args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(request{Func: fn, Args: args}); err != nil {
		return nil, fmt.Errorf("bridge: encode %s request: %w", fn, err)
	}
	return buf.Bytes(), nil
}

// isResponseLine reports whether a trimmed worker output line is meant as a
// response. Anything else is diagnostic noise.
func isResponseLine(line string) bool {
	return line != "" && (line[0] == '{' || line[0] == '[')
}

// decodeResponse enforces the single-line contract: the line must hold
// exactly one JSON value.
func decodeResponse(line string) (json.RawMessage, error) {
	if !json.Valid([]byte(line)) {
		return nil, &ProtocolError{Reason: "malformed response line", Line: line}
	}
	return json.RawMessage(line), nil
}
