package genai

import (
	"errors"
	"strings"
)

// DataURL is a parsed data:<mime>;base64,<payload> image reference, the wire
// format the web client uses for every image it sends or receives.
type DataURL struct {
	MimeType string
	Data     string // base64 payload, not decoded
}

var errInvalidDataURL = errors.New("invalid data URL")

// ParseDataURL splits a base64 data URL into its MIME type and payload.
func ParseDataURL(s string) (DataURL, error) {
	if !strings.HasPrefix(s, "data:") {
		return DataURL{}, errInvalidDataURL
	}

	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok || payload == "" {
		return DataURL{}, errInvalidDataURL
	}

	mime, encoding, ok := strings.Cut(header, ";")
	if !ok || encoding != "base64" || mime == "" {
		return DataURL{}, errInvalidDataURL
	}

	return DataURL{MimeType: mime, Data: payload}, nil
}

// String renders the canonical data URL form.
func (d DataURL) String() string {
	return "data:" + d.MimeType + ";base64," + d.Data
}
