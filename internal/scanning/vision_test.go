package scanning

import (
	"bytes"
	"context"
	"errors"
	"image/png"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/genproto/googleapis/rpc/status"
)

// mockAnnotator is a mock implementation of imageAnnotator
type mockAnnotator struct {
	resp     *visionpb.BatchAnnotateImagesResponse
	err      error
	requests []*visionpb.BatchAnnotateImagesRequest
	closed   bool
}

func (m *mockAnnotator) BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *mockAnnotator) Close() error {
	m.closed = true
	return nil
}

var _ = Describe("Vision", func() {
	var (
		annotator *mockAnnotator
		scanner   *Vision
		text      string
		err       error
	)

	BeforeEach(func() {
		annotator = &mockAnnotator{}
		scanner = &Vision{client: annotator}
	})

	JustBeforeEach(func() {
		text, err = scanner.ReadText(context.Background(), []byte("png data"), "image/png")
	})

	When("text is detected", func() {
		BeforeEach(func() {
			annotator.resp = &visionpb.BatchAnnotateImagesResponse{
				Responses: []*visionpb.AnnotateImageResponse{{
					TextAnnotations: []*visionpb.EntityAnnotation{
						{Description: "LECLERC\nTOTAL 8,90"},
						{Description: "LECLERC"},
					},
				}},
			}
		})

		It("should return the full text annotation", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("LECLERC\nTOTAL 8,90"))
		})

		It("should request text detection for the image", func() {
			Expect(annotator.requests).To(HaveLen(1))
			request := annotator.requests[0].GetRequests()[0]
			Expect(request.GetImage().GetContent()).To(Equal([]byte("png data")))
			Expect(request.GetFeatures()[0].GetType()).To(Equal(visionpb.Feature_TEXT_DETECTION))
		})
	})

	When("no text is detected", func() {
		BeforeEach(func() {
			annotator.resp = &visionpb.BatchAnnotateImagesResponse{
				Responses: []*visionpb.AnnotateImageResponse{{}},
			}
		})

		It("should return an empty string", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(BeEmpty())
		})
	})

	When("the image response carries an error", func() {
		BeforeEach(func() {
			annotator.resp = &visionpb.BatchAnnotateImagesResponse{
				Responses: []*visionpb.AnnotateImageResponse{{
					Error: &status.Status{Code: 3, Message: "Bad image data."},
				}},
			}
		})

		It("should return the API error", func() {
			Expect(err).To(MatchError("vision API error (code 3): Bad image data."))
		})
	})

	When("the call fails", func() {
		BeforeEach(func() {
			annotator.err = errors.New("permission denied")
		})

		It("should wrap the error", func() {
			Expect(err).To(MatchError("detecting text: permission denied"))
		})
	})

	When("the response is empty", func() {
		BeforeEach(func() {
			annotator.resp = &visionpb.BatchAnnotateImagesResponse{}
		})

		It("should return an error", func() {
			Expect(err).To(MatchError("no response from vision"))
		})
	})

	It("should close the client", func() {
		Expect(scanner.Close()).To(Succeed())
		Expect(annotator.closed).To(BeTrue())
	})
})

var _ = Describe("Vision image data", func() {
	var (
		annotator *mockAnnotator
		scanner   *Vision
		jpegData  []byte
	)

	sentImage := func() []byte {
		Expect(annotator.requests).To(HaveLen(1))
		return annotator.requests[0].GetRequests()[0].GetImage().GetContent()
	}

	BeforeEach(func() {
		annotator = &mockAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{}},
		}}
		scanner = &Vision{client: annotator}
		jpegData = encodeTestJPEG(testImage(64, 48))
	})

	It("should send JPEG bytes unchanged", func() {
		_, err := scanner.ReadText(context.Background(), jpegData, "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		Expect(sentImage()).To(Equal(jpegData))
	})

	It("should ignore content type parameters", func() {
		_, err := scanner.ReadText(context.Background(), jpegData, "Image/JPEG; charset=binary")
		Expect(err).NotTo(HaveOccurred())
		Expect(sentImage()).To(Equal(jpegData))
	})

	It("should convert types Vision does not read to PNG", func() {
		_, err := scanner.ReadText(context.Background(), jpegData, "application/octet-stream")
		Expect(err).NotTo(HaveOccurred())

		img, err := png.Decode(bytes.NewReader(sentImage()))
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(64))
	})
})

var _ = Describe("NewVision", func() {
	It("should require credentials", func() {
		_, err := NewVision(context.Background(), "")
		Expect(err).To(MatchError("vision credentials are required"))
	})
})
