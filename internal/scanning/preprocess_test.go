package scanning

import (
	"bytes"
	"context"
	"image"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recordingScanner records what it was asked to read
type recordingScanner struct {
	data        []byte
	contentType string
	closed      bool
}

func (r *recordingScanner) ReadText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	r.data = imageData
	r.contentType = contentType
	return "TOTAL 1,00", nil
}

func (r *recordingScanner) Close() error {
	r.closed = true
	return nil
}

var _ = Describe("WithPreprocessing", func() {
	var (
		next    *recordingScanner
		scanner Scanner
	)

	BeforeEach(func() {
		next = &recordingScanner{}
		scanner = WithPreprocessing(next)
	})

	It("should hand a grayscale PNG scaled to a readable height to the next scanner", func() {
		text, err := scanner.ReadText(context.Background(), encodeTestJPEG(testImage(60, 120)), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("TOTAL 1,00"))
		Expect(next.contentType).To(Equal("image/png"))

		img, format, err := image.Decode(bytes.NewReader(next.data))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
		Expect(img.Bounds().Dy()).To(Equal(minTextHeight))
		Expect(img.Bounds().Dx()).To(Equal(minTextHeight / 2))

		r, g, b, _ := img.At(10, 10).RGBA()
		Expect(r).To(Equal(g))
		Expect(g).To(Equal(b))
	})

	It("should accept PNG input", func() {
		_, err := scanner.ReadText(context.Background(), encodeTestPNG(testImage(20, 20)), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(next.data).NotTo(BeEmpty())
	})

	It("should fail on data that is not an image", func() {
		_, err := scanner.ReadText(context.Background(), []byte("nope"), "image/png")
		Expect(err).To(MatchError(ContainSubstring("preprocessing image")))
		Expect(next.data).To(BeNil())
	})

	It("should close the next scanner", func() {
		Expect(scanner.Close()).To(Succeed())
		Expect(next.closed).To(BeTrue())
	})
})
