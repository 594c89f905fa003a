package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Identifier is a spool identifier. It decodes from a JSON string or number
// and always encodes as a string.
type Identifier string

// UnmarshalJSON accepts "123", 123, and null.
func (id *Identifier) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*id = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*id = Identifier(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("identifier must be a string or integer: %w", err)
	}
	if strings.ContainsAny(n.String(), ".eE") {
		return fmt.Errorf("identifier must be an integer, got %s", n)
	}
	*id = Identifier(n.String())
	return nil
}

// String returns the identifier text.
func (id Identifier) String() string {
	return string(id)
}

// UploadParams are the params of the upload method.
type UploadParams struct {
	Data       string     `json:"data"`
	IsLast     bool       `json:"is_last"`
	Identifier Identifier `json:"identifier,omitempty"`
}

// UploadResult is returned by upload.
type UploadResult struct {
	Identifier string `json:"identifier"`
}

// ConvertParams are the params of the convert method. Data is a pointer so an
// explicitly empty payload can be told apart from an absent one.
type ConvertParams struct {
	Data       *string    `json:"data,omitempty"`
	Identifier Identifier `json:"identifier,omitempty"`
	InFormat   string     `json:"in_format,omitempty"`
	OutFormat  string     `json:"out_format,omitempty"`
	InMIME     string     `json:"in_mime,omitempty"`
	OutMIME    string     `json:"out_mime,omitempty"`
	ClientID   string     `json:"client_id,omitempty"`
}

// Normalize folds the mime aliases into the format fields.
func (p *ConvertParams) Normalize() {
	p.InFormat = pickFormat(p.InFormat, p.InMIME)
	p.OutFormat = pickFormat(p.OutFormat, p.OutMIME)
	p.InMIME, p.OutMIME = "", ""
	p.ClientID = strings.TrimSpace(p.ClientID)
}

// DecodeData returns the inline payload, or nil when none was sent. A present
// but empty payload decodes to an empty non-nil slice.
func (p *ConvertParams) DecodeData() ([]byte, error) {
	if p.Data == nil {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(*p.Data)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// JoinParams are the params of the join method.
type JoinParams struct {
	Identifiers []Identifier `json:"identifiers"`
	InFormat    string       `json:"in_format,omitempty"`
	OutFormat   string       `json:"out_format,omitempty"`
	InMIME      string       `json:"in_mime,omitempty"`
	OutMIME     string       `json:"out_mime,omitempty"`
	ClientID    string       `json:"client_id,omitempty"`
}

// Normalize folds the mime aliases into the format fields.
func (p *JoinParams) Normalize() {
	p.InFormat = pickFormat(p.InFormat, p.InMIME)
	p.OutFormat = pickFormat(p.OutFormat, p.OutMIME)
	p.InMIME, p.OutMIME = "", ""
	p.ClientID = strings.TrimSpace(p.ClientID)
}

// IdentifierStrings returns the identifiers in request order.
func (p *JoinParams) IdentifierStrings() []string {
	out := make([]string, len(p.Identifiers))
	for i, id := range p.Identifiers {
		out[i] = id.String()
	}
	return out
}

// LogLevelParams are the params of set_log_level.
type LogLevelParams struct {
	Verbose bool `json:"verbose"`
}

// LogLevelResult acknowledges a level change.
type LogLevelResult struct {
	Ack   string `json:"ack"`
	Level string `json:"level"`
}

// SelfTestResult is returned by the test method.
type SelfTestResult struct {
	Status string `json:"status"`
	Digest string `json:"digest"`
	Pages  int    `json:"pages,omitempty"`
}

// HistoryParams are the params of the history method.
type HistoryParams struct {
	Limit int `json:"limit,omitempty"`
}

func pickFormat(format, mime string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" {
		return format
	}
	return strings.ToLower(strings.TrimSpace(mime))
}
