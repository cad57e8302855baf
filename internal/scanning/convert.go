package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

type format int

const (
	formatOther format = iota
	formatPNG
	formatPDF
	formatHEIC
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// detectFormat prefers magic bytes over the declared content type, since
// phones often upload HEIC photos labelled as JPEG
func detectFormat(data []byte, contentType string) format {
	switch {
	case bytes.HasPrefix(data, pngSignature):
		return formatPNG
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return formatPDF
	case len(data) >= 12 && string(data[4:8]) == "ftyp":
		switch string(data[8:12]) {
		case "heic", "heix", "heif", "mif1", "msf1":
			return formatHEIC
		}
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case contentType == "application/pdf":
		return formatPDF
	case strings.Contains(contentType, "heic"), strings.Contains(contentType, "heif"):
		return formatHEIC
	}
	return formatOther
}

// ToPNG converts an upload to PNG. Only the first page of a PDF is used.
func ToPNG(data []byte, contentType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	switch detectFormat(data, contentType) {
	case formatPNG:
		return data, nil
	case formatPDF:
		img, err = renderPDF(data)
	case formatHEIC:
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding HEIC image: %w", err)
		}
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding image (supported: JPEG, PNG, GIF, HEIC, PDF): %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func renderPDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}
