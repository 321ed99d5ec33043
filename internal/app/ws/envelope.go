package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// credential is an account id or token as sent by the client. The guest
// sentinel arrives as the JSON number -1 from some clients and as "-1" from
// others, so both decode to the same string.
type credential string

func (c *credential) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("invalid credential: %w", err)
		}
		*c = credential(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid credential: %w", err)
	}
	*c = credential(n.String())
	return nil
}

// Envelope is an inbound request frame. Name selects the operation, Handle
// is the opaque correlation handle echoed back verbatim, and id/token are
// the ambient session credentials.
type Envelope struct {
	Name    string          `json:"name"`
	Handle  string          `json:"handle"`
	ID      credential      `json:"id"`
	Token   credential      `json:"token"`
	Message json.RawMessage `json:"message"`
}

// Response is the single reply frame for a request.
type Response struct {
	Name    string `json:"name"`
	Handle  string `json:"handle"`
	Success bool   `json:"success"`
	Message any    `json:"message"`
}
