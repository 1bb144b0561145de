package media

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"

	vidio "github.com/AlexEidt/Vidio"
)

// ErrDecoderUnavailable means the host cannot decode video at all, for
// example because ffmpeg is not installed. It says nothing about the payload.
var ErrDecoderUnavailable = errors.New("video decoder unavailable")

// DecoderTools are the binaries Vidio shells out to.
var DecoderTools = []string{"ffmpeg", "ffprobe"}

var lookPath = exec.LookPath

// CheckDecoder reports ErrDecoderUnavailable when a decoder binary is missing
// from PATH.
func CheckDecoder() error {
	for _, tool := range DecoderTools {
		if _, err := lookPath(tool); err != nil {
			return fmt.Errorf("%w: %v", ErrDecoderUnavailable, err)
		}
	}
	return nil
}

// vidioSource streams frames from ffmpeg through Vidio. Vidio needs a file
// path, so the payload is spooled to a temp file for the lifetime of the source.
type vidioSource struct {
	video *vidio.Video
	frame *image.RGBA
	path  string
}

// OpenVidio is the default Opener. It requires ffmpeg and ffprobe on PATH.
func OpenVidio(data []byte) (FrameSource, error) {
	if err := CheckDecoder(); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "chatbridge-video-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %v", ErrDecoderUnavailable, err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: spool video: %v", ErrDecoderUnavailable, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: spool video: %v", ErrDecoderUnavailable, err)
	}

	video, err := vidio.NewVideo(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("probe video: %w", err)
	}
	if video.Width() <= 0 || video.Height() <= 0 {
		video.Close()
		os.Remove(path)
		return nil, fmt.Errorf("video has no picture stream")
	}

	frame := image.NewRGBA(image.Rect(0, 0, video.Width(), video.Height()))
	if err := video.SetFrameBuffer(frame.Pix); err != nil {
		video.Close()
		os.Remove(path)
		return nil, fmt.Errorf("set frame buffer: %w", err)
	}

	return &vidioSource{video: video, frame: frame, path: path}, nil
}

func (s *vidioSource) Next() (image.Image, error) {
	if !s.video.Read() {
		return nil, io.EOF
	}
	return s.frame, nil
}

func (s *vidioSource) Close() error {
	s.video.Close()
	return os.Remove(s.path)
}
