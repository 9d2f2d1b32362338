// Package preprocess turns uploaded image bytes into the input tensor of the
// disease classifier.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Input geometry the classifier was trained on. Not configurable.
const (
	Size     = 224
	Channels = 3

	// MaxPixels bounds the decoded source image to keep a hostile upload
	// from exhausting memory.
	MaxPixels = 40_000_000
)

// ErrDecode is returned when the payload is not a decodable image.
var ErrDecode = errors.New("invalid image")

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Image runs the full pipeline: decode, drop to RGB, resize to Size×Size,
// scale to [0, 1] and add a batch dimension. The result has shape
// (1, Size, Size, Channels). Identical input always yields an identical tensor.
func Image(data []byte) (Tensor, error) {
	img, err := Decode(data)
	if err != nil {
		return Tensor{}, err
	}
	return FromImage(img), nil
}

// FromImage runs every step after decoding.
func FromImage(img image.Image) Tensor {
	rgb := ToRGB(img)
	resized := Resize(rgb)
	return Tensor{
		Shape: []int64{1, Size, Size, Channels},
		Data:  Normalize(resized),
	}
}

// Decode parses data with any registered image format
// (JPEG, PNG, GIF, BMP, TIFF, WebP).
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %s image has no pixels", ErrDecode, format)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %s image %dx%d exceeds %d pixels", ErrDecode, format, cfg.Width, cfg.Height, MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// ToRGB copies img into an opaque RGBA image anchored at the origin.
// Alpha is discarded rather than composited and grayscale is expanded
// to three equal channels.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := out.PixOffset(x-b.Min.X, y-b.Min.Y)
			out.Pix[i+0] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = 0xff
		}
	}
	return out
}

// Resize scales img to Size×Size with bicubic resampling.
func Resize(img *image.RGBA) *image.RGBA {
	resized := resize.Resize(Size, Size, img, resize.Bicubic)
	if rgba, ok := resized.(*image.RGBA); ok {
		return rgba
	}
	return ToRGB(resized)
}

// Normalize flattens img into HWC order and divides every channel by 255.
func Normalize(img *image.RGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, 0, w*h*Channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			out = append(out,
				float32(img.Pix[i+0])/255.0,
				float32(img.Pix[i+1])/255.0,
				float32(img.Pix[i+2])/255.0,
			)
		}
	}
	return out
}
