// Package thumb produces small 2D preview images from stereo-packed
// stills and video frames.
package thumb

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"stereo-media-server/internal/vfs"
)

const (
	// Size is the bound for the larger thumbnail dimension and the
	// side of the square output canvas.
	Size = 64

	quality = 80
)

// FrameExtractor decodes a single still frame from a video container.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, path string) ([]byte, error)
}

// Generator derives thumbnails. The zero value is usable for still
// images; video thumbnails need a FrameExtractor.
type Generator struct {
	frames FrameExtractor
}

// NewGenerator returns a Generator that uses frames for video input.
func NewGenerator(frames FrameExtractor) *Generator {
	return &Generator{frames: frames}
}

// FromImage decodes a still image, extracts the left eye according to
// format, and encodes a Size×Size WebP thumbnail. Decode failures are
// returned as errors; callers decide the fallback, and nothing is
// cached for a failed derivation.
func (g *Generator) FromImage(data []byte, format vfs.StereoFormat) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return render(img, format)
}

// FromVideo extracts a frame from the video at path and thumbnails it
// like a still image.
func (g *Generator) FromVideo(ctx context.Context, path string, format vfs.StereoFormat) ([]byte, error) {
	if g.frames == nil {
		return nil, fmt.Errorf("no frame extractor configured")
	}
	frame, err := g.frames.ExtractFrame(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extracting frame: %w", err)
	}
	return g.FromImage(frame, format)
}

func render(img image.Image, format vfs.StereoFormat) ([]byte, error) {
	left := cropLeftEye(img, format)
	fitted := imaging.Fit(left, Size, Size, imaging.Lanczos)
	canvas := imaging.New(Size, Size, color.NRGBA{})
	out := imaging.PasteCenter(canvas, fitted)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, out, &webp.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding webp: %w", err)
	}
	return buf.Bytes(), nil
}

// cropLeftEye isolates the left-eye sub-image of a packed frame. The
// cross side-by-side variant stores the eyes swapped, so its left eye
// is the geometric right half. Half-resolution variants are stretched
// back to full aspect after cropping.
func cropLeftEye(img image.Image, format vfs.StereoFormat) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch format {
	case vfs.SBSFull, vfs.SBSHalf:
		left := imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+w/2, b.Max.Y))
		if format == vfs.SBSHalf {
			left = imaging.Resize(left, left.Bounds().Dx()*2, left.Bounds().Dy(), imaging.Lanczos)
		}
		return left
	case vfs.SBSFullCross:
		return imaging.Crop(img, image.Rect(b.Min.X+w/2, b.Min.Y, b.Max.X, b.Max.Y))
	case vfs.TBFull, vfs.TBHalf:
		top := imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+h/2))
		if format == vfs.TBHalf {
			top = imaging.Resize(top, top.Bounds().Dx(), top.Bounds().Dy()*2, imaging.Lanczos)
		}
		return top
	default:
		return img
	}
}
