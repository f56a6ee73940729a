// Package preprocess turns encoded image bytes into the normalised,
// channel-first float32 tensor the classification models expect.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	"github.com/nfnt/resize"

	"github.com/ekisa-team/synbench/internal/fault"
)

// Default spatial size of the classification models.
const (
	DefaultWidth  = 224
	DefaultHeight = 224
	Channels      = 3
)

// Per-channel normalisation constants (ImageNet statistics).
var (
	Mean = [Channels]float32{0.485, 0.456, 0.406}
	Std  = [Channels]float32{0.229, 0.224, 0.225}
)

// Tensor is a batch-1, channel-major float32 buffer of shape [1, 3, H, W].
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Height returns the spatial height of the tensor.
func (t *Tensor) Height() int {
	return int(t.Shape[2])
}

// Width returns the spatial width of the tensor.
func (t *Tensor) Width() int {
	return int(t.Shape[3])
}

// NewTensor allocates a zeroed [1, 3, height, width] tensor.
func NewTensor(width, height int) (*Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, fault.Errorf(fault.ImageConversion, "tensor", "invalid size %dx%d", width, height)
	}
	return &Tensor{
		Shape: []int64{1, Channels, int64(height), int64(width)},
		Data:  make([]float32, Channels*width*height),
	}, nil
}

// Transform decodes data, resizes it to exactly width x height with a
// triangle filter and normalises it into a tensor.
func Transform(data []byte, width, height int) (*Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fault.New(fault.ImageLoad, "decode image", err)
	}
	return FromImage(img, width, height)
}

// FromImage resizes and normalises an already decoded image.
func FromImage(img image.Image, width, height int) (*Tensor, error) {
	tensor, err := NewTensor(width, height)
	if err != nil {
		return nil, err
	}

	// Bilinear is the triangle filter; other filters shift pixel values
	// enough to change the predicted class.
	resized := resize.Resize(uint(width), uint(height), opaque(img), resize.Bilinear)
	bounds := resized.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		return nil, fault.Errorf(fault.ImageConversion, "resize image", "got %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), width, height)
	}

	plane := width * height
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			rgb := pixel(resized, bounds.Min.X+x, bounds.Min.Y+y)
			offset := y*width + x
			for c := 0; c < Channels; c++ {
				tensor.Data[c*plane+offset] = (float32(rgb[c])/255.0 - Mean[c]) / Std[c]
			}
		}
	}

	return tensor, nil
}

// opaque drops the alpha channel, keeping straight (not premultiplied) RGB,
// so translucent pixels keep their colour through the resize.
func opaque(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}

	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < bounds.Dy(); y++ {
			src := nrgba.Pix[nrgba.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			dst := out.Pix[out.PixOffset(0, y):]
			for x := 0; x < bounds.Dx(); x++ {
				i := x * 4
				dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i], src[i+1], src[i+2], 0xff
			}
		}
		return out
	}

	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			out.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return out
}

// pixel returns the 8-bit RGB value at (x, y).
func pixel(img image.Image, x, y int) [Channels]uint8 {
	if rgba, ok := img.(*image.RGBA); ok {
		i := rgba.PixOffset(x, y)
		return [Channels]uint8{rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2]}
	}

	r, g, b, _ := img.At(x, y).RGBA()
	return [Channels]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

// String describes the tensor shape.
func (t *Tensor) String() string {
	return fmt.Sprintf("tensor%v", t.Shape)
}
