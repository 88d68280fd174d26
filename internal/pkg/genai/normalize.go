package genai

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
)

// DefaultMaxInputEdge bounds the longest edge of images forwarded to the
// provider. Phone photos routinely exceed it and only waste upload time.
const DefaultMaxInputEdge = 1536

// NormalizeInput decodes an input data URL and downscales it when the
// longest edge exceeds maxEdge, re-encoding as JPEG. Formats the decoder
// does not know (webp, avif) pass through untouched; they are the
// provider's problem, not ours.
func NormalizeInput(d DataURL, maxEdge int) (DataURL, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxInputEdge
	}

	raw, err := base64.StdEncoding.DecodeString(d.Data)
	if err != nil {
		return DataURL{}, fmt.Errorf("decode image payload: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		// Unknown container format, forward as-is.
		return d, nil
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxEdge && bounds.Dy() <= maxEdge {
		return d, nil
	}

	resized := imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return DataURL{}, fmt.Errorf("encode resized image: %w", err)
	}

	return DataURL{
		MimeType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}
