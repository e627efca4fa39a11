package scanning

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	// minTextHeight is the height small photos are scaled up to; OCR misses
	// separators and decimals on low resolution receipts
	minTextHeight = 1200
	// maxTextHeight caps very large photos to keep uploads to the OCR service small
	maxTextHeight = 3000
)

// preprocessingScanner cleans up the image before handing it to the next scanner
type preprocessingScanner struct {
	next Scanner
}

// WithPreprocessing wraps next so every image is converted to grayscale,
// resized into a readable range, denoised and sharpened before OCR.
func WithPreprocessing(next Scanner) Scanner {
	return &preprocessingScanner{next: next}
}

func (p *preprocessingScanner) ReadText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	img, err := decodeImage(imageData, normalizeMimeType(contentType))
	if err != nil {
		return "", fmt.Errorf("preprocessing image: %w", err)
	}

	pngData, err := encodePNG(preprocessImage(img))
	if err != nil {
		return "", fmt.Errorf("preprocessing image: %w", err)
	}

	return p.next.ReadText(ctx, pngData, "image/png")
}

func (p *preprocessingScanner) Close() error {
	return p.next.Close()
}

// preprocessImage prepares a photo of a receipt for text detection
func preprocessImage(img image.Image) image.Image {
	out := imaging.Grayscale(img)

	switch h := out.Bounds().Dy(); {
	case h < minTextHeight:
		out = imaging.Resize(out, 0, minTextHeight, imaging.Lanczos)
	case h > maxTextHeight:
		out = imaging.Resize(out, 0, maxTextHeight, imaging.Lanczos)
	}

	// Light blur removes sensor noise, sharpening restores the glyph edges
	out = imaging.Blur(out, 0.5)
	out = imaging.AdjustContrast(out, 20)
	return imaging.Sharpen(out, 1.0)
}
