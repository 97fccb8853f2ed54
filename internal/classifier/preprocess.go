// Package classifier turns raw image bytes into an unsafe-content probability:
// decode, resize to the model's input dimensions, normalize into a CHW float32
// tensor, run the ONNX classifier, and reduce its output to a single score.
package classifier

import (
	"bytes"
	"fmt"
	"image"

	// Register the decoders for the formats the marketplace accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/gift"
)

// Tensor is a normalized image in CHW layout, ready for inference.
type Tensor struct {
	Data   []float32
	Width  int
	Height int
}

// Standard image-classifier normalization constants (per RGB channel).
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocessor resizes decoded images to a fixed size and normalizes them.
type Preprocessor struct {
	width  int
	height int
	resize *gift.GIFT
}

// NewPreprocessor builds a preprocessor for the given model input dimensions.
func NewPreprocessor(width, height int) *Preprocessor {
	return &Preprocessor{
		width:  width,
		height: height,
		resize: gift.New(gift.Resize(width, height, gift.LanczosResampling)),
	}
}

// Preprocess decodes raw bytes and produces the model input tensor. A decode
// failure is a per-record processing failure, reported to the caller.
func (p *Preprocessor) Preprocess(raw []byte) (*Tensor, error) {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	_ = format

	dst := image.NewRGBA(p.resize.Bounds(src.Bounds()))
	p.resize.Draw(dst, src)

	w, h := p.width, p.height
	data := make([]float32, 3*w*h)
	bounds := dst.Bounds()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := dst.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// RGBA returns 16-bit channels; scale to [0,1] before the
			// per-channel mean/std normalization.
			data[0*w*h+y*w+x] = (float32(r)/65535 - channelMean[0]) / channelStd[0]
			data[1*w*h+y*w+x] = (float32(g)/65535 - channelMean[1]) / channelStd[1]
			data[2*w*h+y*w+x] = (float32(b)/65535 - channelMean[2]) / channelStd[2]
		}
	}
	return &Tensor{Data: data, Width: w, Height: h}, nil
}
