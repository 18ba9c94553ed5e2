package burn

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/georgepadayatti/gopdf/pdf/images"
)

// DecodeSignatureImage turns a submitted signature payload into a PDF image
// object scoped to the document being edited. Payloads are base64, with or
// without a data-URL prefix. A declared PNG decodes as PNG, a declared JPEG
// as JPEG; anything else falls back to PNG.
func DecodeSignatureImage(payload string) (*images.PDFImage, error) {
	mime, b64 := splitDataURL(payload)

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(b64); err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
	}

	var img image.Image
	switch mime {
	case "image/jpeg", "image/jpg":
		img, err = jpeg.Decode(bytes.NewReader(raw))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(raw))
	default:
		img, err = png.Decode(bytes.NewReader(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", mimeOrPNG(mime), err)
	}

	pdfImage, err := images.NewPDFImageFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	return pdfImage, nil
}

// splitDataURL separates an optional "data:<mime>;base64," prefix from the
// encoded body.
func splitDataURL(payload string) (mime, b64 string) {
	if !strings.HasPrefix(payload, "data:") {
		return "", payload
	}
	rest := strings.TrimPrefix(payload, "data:")
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", payload
	}
	meta := rest[:comma]
	if semi := strings.IndexByte(meta, ';'); semi >= 0 {
		meta = meta[:semi]
	}
	return strings.ToLower(strings.TrimSpace(meta)), rest[comma+1:]
}

func mimeOrPNG(mime string) string {
	if mime == "" {
		return "image/png"
	}
	return mime
}
