package dataset

import (
	"fmt"
	"image"
	"image/color"
	"io"

	// Decoders for every extension labels.IsImageFile accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Transform is the deterministic preprocessing applied to every image before
// it reaches the model: resize to Size x Size, scale to [0,1], then normalise
// each channel with Mean and Std.
type Transform struct {
	Size int
	Mean [3]float64
	Std  [3]float64
}

// DefaultTransform resizes to 224x224 and applies the ImageNet statistics.
func DefaultTransform() Transform {
	return Transform{
		Size: 224,
		Mean: [3]float64{0.485, 0.456, 0.406},
		Std:  [3]float64{0.229, 0.224, 0.225},
	}
}

// Width is the length of the flattened CHW vector Apply produces.
func (t Transform) Width() int { return 3 * t.Size * t.Size }

// Validate rejects transforms that would divide by zero or produce no pixels.
func (t Transform) Validate() error {
	if t.Size <= 0 {
		return fmt.Errorf("transform size must be positive, got %d", t.Size)
	}
	for c, s := range t.Std {
		if s == 0 {
			return fmt.Errorf("transform std for channel %d is zero", c)
		}
	}
	return nil
}

// Apply resizes img with bilinear interpolation and returns the normalised
// pixels in channel-major (CHW) order. Alpha is dropped before scaling and
// the straight colour channels are kept, so a transparent pixel contributes
// its stored colour rather than black.
func (t Transform) Apply(img image.Image) []float64 {
	s := t.Size
	img = opaque(img)
	dst := image.NewRGBA(image.Rect(0, 0, s, s))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := s * s
	out := make([]float64, 3*plane)
	for y := 0; y < s; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < s; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < 3; c++ {
				v := float64(px[c]) / 255
				out[c*plane+y*s+x] = (v - t.Mean[c]) / t.Std[c]
			}
		}
	}
	return out
}

type opaqueImage interface {
	Opaque() bool
}

// opaque returns img with every alpha value forced to fully opaque.
func opaque(img image.Image) image.Image {
	switch m := img.(type) {
	case *image.NYCbCrA:
		return &m.YCbCr
	case *image.NRGBA:
		out := &image.NRGBA{Pix: append([]uint8(nil), m.Pix...), Stride: m.Stride, Rect: m.Rect}
		for i := 3; i < len(out.Pix); i += 4 {
			out.Pix[i] = 0xff
		}
		return out
	case opaqueImage:
		if m.Opaque() {
			return img
		}
	}
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}

// DecodeImage decodes any registered image format.
func DecodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	return img, nil
}
