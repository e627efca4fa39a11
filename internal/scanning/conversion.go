package scanning

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// noTextMarker is what the transcription prompt asks for when the image has no text
const noTextMarker = "NO TEXT"

// transcriptionPrompt is the shared prompt used by the language model scanners.
// It asks for raw OCR output so the same total extraction runs whichever
// scanner produced the text.
const transcriptionPrompt = `You are an OCR engine. Transcribe every piece of text visible in this receipt image.

Rules:
- Output one line of text per printed line, top to bottom, in reading order
- Keep numbers exactly as printed, including separators (e.g. 1,234.56 or 12,50)
- Keep labels such as TOTAL, SOUS-TOTAL, SUBTOTAL, MONTANT or AMOUNT DUE on the same line as their amount when they are printed together
- Do not summarize, translate, correct or interpret anything
- Do not use markdown or code blocks
- If the image contains no text, answer exactly: NO TEXT`

// decodeImage decodes an upload into an image. PDFs render their first page,
// HEIC/HEIF photos go through the pure Go decoder and everything else goes
// through imaging so EXIF orientation from phone cameras is applied.
func decodeImage(imageData []byte, mimeType string) (image.Image, error) {
	switch {
	case mimeType == "application/pdf":
		doc, err := fitz.NewFromMemory(imageData)
		if err != nil {
			return nil, fmt.Errorf("opening PDF: %w", err)
		}
		defer doc.Close()

		// Receipts are single page
		img, err := doc.Image(0)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page: %w", err)
		}
		return img, nil

	case isHEICFormat(imageData) || isHEICMimeType(mimeType):
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil

	default:
		img, err := imaging.Decode(bytes.NewReader(imageData), imaging.AutoOrientation(true))
		if err != nil {
			if errors.Is(err, image.ErrFormat) {
				return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
		return img, nil
	}
}

// encodePNG encodes img as PNG
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC/HEIF brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// normalizeMimeType lowercases and trims contentType, defaulting to JPEG
func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		return "image/jpeg"
	}
	return mimeType
}

// prepareImageData converts the upload to PNG unless it already is one.
// The boolean reports whether a conversion happened.
func prepareImageData(imageData []byte, contentType string) ([]byte, bool, error) {
	mimeType := normalizeMimeType(contentType)
	if mimeType == "image/png" && !isHEICFormat(imageData) {
		return imageData, false, nil
	}

	img, err := decodeImage(imageData, mimeType)
	if err != nil {
		return nil, false, err
	}
	pngData, err := encodePNG(img)
	if err != nil {
		return nil, false, err
	}
	return pngData, true, nil
}
