// Package provider talks to the third-party vehicle registry API and
// classifies its failures.
package provider

import (
	"bytes"
	"encoding/json"

	"github.com/veicheck/veicheck/engine/domain"
)

// Request is a single provider lookup.
type Request struct {
	Kind    domain.Kind
	Value   string
	Variant domain.Variant
	UF      string
}

// Response is the decoded provider envelope. Raw always holds the body as
// received so it can be logged verbatim.
type Response struct {
	Code       int
	HTTPStatus int
	Message    string
	Errors     []string
	Data       map[string]any
	Raw        []byte
}

// envelope is the provider's JSON body.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Errors  messages        `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

// messages accepts either a single string or a list of strings.
type messages []string

func (m *messages) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = messages{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*m = list
	return nil
}
