package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	return img
}

func encodeTestJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())
	return buf.Bytes()
}

func encodeTestPNG(img image.Image) []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("prepareImageData", func() {
	var (
		input       []byte
		contentType string
		output      []byte
		converted   bool
		err         error
	)

	JustBeforeEach(func() {
		output, converted, err = prepareImageData(input, contentType)
	})

	When("the image is already PNG", func() {
		BeforeEach(func() {
			input = []byte("png bytes are passed through untouched")
			contentType = " IMAGE/PNG "
		})

		It("should return the data as-is", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeFalse())
			Expect(output).To(Equal(input))
		})
	})

	When("the image is JPEG", func() {
		BeforeEach(func() {
			input = encodeTestJPEG(testImage(40, 30))
			contentType = "image/jpeg; charset=binary"
		})

		It("should convert it to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())

			img, format, decodeErr := image.Decode(bytes.NewReader(output))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
			Expect(img.Bounds().Dx()).To(Equal(40))
			Expect(img.Bounds().Dy()).To(Equal(30))
		})
	})

	When("the content type is missing", func() {
		BeforeEach(func() {
			input = encodeTestJPEG(testImage(10, 10))
			contentType = ""
		})

		It("should decode it as an image", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
		})
	})

	When("the data is not an image", func() {
		BeforeEach(func() {
			input = []byte("definitely not an image")
			contentType = "image/jpeg"
		})

		It("should report an unsupported format", func() {
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("should detect a heic ftyp box", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic\x00\x00"))).To(BeTrue())
	})

	It("should reject other data", func() {
		Expect(isHEICFormat([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0d"))).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})
})

var _ = Describe("isHEICMimeType", func() {
	It("should match heic and heif types", func() {
		Expect(isHEICMimeType("image/HEIC")).To(BeTrue())
		Expect(isHEICMimeType("image/heif-sequence")).To(BeTrue())
		Expect(isHEICMimeType("image/png")).To(BeFalse())
	})
})
