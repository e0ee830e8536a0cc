// Package asset turns downloaded image bytes into displayable screen images.
//
// The container type is sniffed from the first character of the base64
// encoding, which is how the playlist servers have always been checked:
//
//	"/" jpeg (FF D8)   "i" png (89 50)   "R" gif (47 49)   "U" webp (52 49)
//
// Anything else is rejected. Recognized data is then probed with the standard
// image decoders so a truncated or corrupt body is caught before display.
package asset

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/abelbrown/signage/internal/screen"
)

// Supported container types.
const (
	TypeJPEG = "jpeg"
	TypePNG  = "png"
	TypeGIF  = "gif"
	TypeWebP = "webp"
)

// DecodeError reasons.
const (
	ReasonUnknownType = "unknown image type"
	ReasonBadData     = "failed to load image data"
)

// Sniff returns the image type for base64 data, or "" if unrecognized.
func Sniff(b64 string) string {
	if b64 == "" {
		return ""
	}
	switch b64[0] {
	case '/':
		return TypeJPEG
	case 'i':
		return TypePNG
	case 'R':
		return TypeGIF
	case 'U':
		return TypeWebP
	default:
		return ""
	}
}

// DataURI builds a data URI for base64 image data.
func DataURI(b64, typ string) string {
	return "data:image/" + typ + ";base64," + b64
}

// Decode sniffs, probes and wraps raw image bytes. Errors are
// *screen.DecodeError and match screen.ErrDecode.
func Decode(resource string, data []byte) (*screen.Image, error) {
	b64 := base64.StdEncoding.EncodeToString(data)

	typ := Sniff(b64)
	if typ == "" {
		return nil, &screen.DecodeError{Resource: resource, Reason: ReasonUnknownType}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &screen.DecodeError{Resource: resource, Reason: ReasonBadData, Err: err}
	}

	return &screen.Image{
		Type:   typ,
		Size:   len(data),
		Width:  cfg.Width,
		Height: cfg.Height,
		URI:    DataURI(b64, typ),
	}, nil
}
