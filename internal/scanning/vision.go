package scanning

import (
	"context"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// imageAnnotator is the part of the Cloud Vision client the scanner uses
type imageAnnotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// Vision implements the Scanner interface with Google Cloud Vision text detection
type Vision struct {
	client imageAnnotator
}

// NewVision creates a Cloud Vision client authenticated with a service
// account key given as JSON.
func NewVision(ctx context.Context, credentialsJSON string) (*Vision, error) {
	if credentialsJSON == "" {
		return nil, fmt.Errorf("vision credentials are required")
	}

	client, err := vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}

	return &Vision{client: client}, nil
}

// ReadText returns the full text annotation of the image
func (v *Vision) ReadText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	finalImageData, err := visionImageData(imageData, contentType)
	if err != nil {
		return "", err
	}

	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image:    &visionpb.Image{Content: finalImageData},
				Features: []*visionpb.Feature{{Type: visionpb.Feature_TEXT_DETECTION}},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("detecting text: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return "", fmt.Errorf("no response from vision")
	}

	result := resp.GetResponses()[0]
	if result.GetError().GetCode() != 0 {
		return "", fmt.Errorf("vision API error (code %d): %s", result.GetError().GetCode(), result.GetError().GetMessage())
	}

	// The first annotation holds the whole text, the rest are single words
	annotations := result.GetTextAnnotations()
	if len(annotations) == 0 {
		return "", nil
	}
	return annotations[0].GetDescription(), nil
}

// visionNativeTypes are accepted by Cloud Vision as uploaded
var visionNativeTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// visionImageData passes natively supported images through untouched and
// converts PDF, HEIC/HEIF and anything else to PNG.
func visionImageData(imageData []byte, contentType string) ([]byte, error) {
	mimeType := normalizeMimeType(contentType)
	if visionNativeTypes[mimeType] && !isHEICFormat(imageData) {
		return imageData, nil
	}
	converted, _, err := prepareImageData(imageData, mimeType)
	return converted, err
}

// Close closes the Vision client
func (v *Vision) Close() error {
	return v.client.Close()
}
