// Package media decodes chat attachments into still images.
package media

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"

	"chatbridge/internal/domain"
	"chatbridge/internal/metrics"

	xdraw "golang.org/x/image/draw"
)

const (
	DefaultFrameInterval = 30
	DefaultMaxFrames     = 120
)

// FrameSource yields decoded video frames in temporal order and returns
// io.EOF after the last one. A returned frame is only valid until the next
// call to Next; sources may reuse the buffer.
type FrameSource interface {
	Next() (image.Image, error)
	Close() error
}

// Opener starts decoding raw video bytes.
type Opener func(data []byte) (FrameSource, error)

// Sampler keeps every Interval-th frame of a video, up to MaxFrames frames.
type Sampler struct {
	Interval     int
	MaxFrames    int
	MaxDimension int    // 0 keeps frames at source resolution
	Open         Opener // defaults to OpenVidio
}

// Sample decodes data and returns the kept frames. Decoding stops as soon as
// MaxFrames frames have been kept. Frames are scaled down as they are kept,
// so no full-resolution copy outlives a single pull.
func (s Sampler) Sample(data []byte) ([]image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty video", domain.ErrDecode)
	}
	open := s.Open
	if open == nil {
		open = OpenVidio
	}
	src, err := open(data)
	if errors.Is(err, ErrDecoderUnavailable) {
		return nil, fmt.Errorf("open video: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open video: %v", domain.ErrDecode, err)
	}
	defer src.Close()

	keep := Clone
	if s.MaxDimension > 0 {
		keep = func(img image.Image) image.Image { return Shrink(img, s.MaxDimension) }
	}
	frames, err := SampleFrames(src, s.Interval, s.MaxFrames, keep)
	if err != nil {
		return nil, err
	}
	metrics.SampledFrames.Observe(float64(len(frames)))
	return frames, nil
}

// SampleFrames pulls from src, keeping keep(frame i) when i%interval == 0. It
// stops pulling once maxFrames frames are kept. keep must return an image that
// does not alias the source buffer; nil means Clone.
func SampleFrames(src FrameSource, interval, maxFrames int, keep func(image.Image) image.Image) ([]image.Image, error) {
	if interval <= 0 || maxFrames <= 0 {
		return nil, fmt.Errorf("invalid sampling parameters: interval=%d maxFrames=%d", interval, maxFrames)
	}
	if keep == nil {
		keep = Clone
	}

	var frames []image.Image
	for i := 0; len(frames) < maxFrames; i++ {
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %v", domain.ErrDecode, i, err)
		}
		if i%interval == 0 {
			frames = append(frames, keep(frame))
		}
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: video has no frames", domain.ErrDecode)
	}
	return frames, nil
}

// Clone copies img into a standalone RGBA image anchored at the origin.
func Clone(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Shrink returns a standalone copy of img that fits within maxDim.
func Shrink(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return Clone(img)
	}
	return Fit(img, maxDim)
}

// Fit scales img down so its longest side is at most maxDim. Smaller images
// are returned unchanged.
func Fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
