package scanning

import "context"

// Scanner turns a receipt image into the text printed on it
type Scanner interface {
	// ReadText returns every line of text detected in the image, newline
	// separated. An image without text yields an empty string.
	ReadText(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}
