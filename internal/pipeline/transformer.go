package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelcache/internal/style"
)

const (
	EngineStd    = "std"
	EngineMagick = "magick"
)

var (
	ErrMissingDimensions = errors.New("resize requires a width or a height")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

type Gravity string

const (
	GravityCenter    Gravity = "center"
	GravityNorth     Gravity = "north"
	GravityNorthEast Gravity = "northeast"
	GravityEast      Gravity = "east"
	GravitySouthEast Gravity = "southeast"
	GravitySouth     Gravity = "south"
	GravitySouthWest Gravity = "southwest"
	GravityWest      Gravity = "west"
	GravityNorthWest Gravity = "northwest"
)

// Transformer is the image-processing capability used by the pipeline. Every
// operation returns a new buffer; inputs are never modified.
type Transformer interface {
	Identify(ctx context.Context, data []byte) (width, height int, err error)
	// Resize scales data to width x height. A zero axis is derived from the
	// source aspect ratio.
	Resize(ctx context.Context, data []byte, width, height int, format style.Format) ([]byte, error)
	// MakeCanvas renders a solid canvas. background is 3 or 6 hex digits, or
	// style.BackgroundNone for a transparent canvas.
	MakeCanvas(ctx context.Context, width, height int, background string, format style.Format) ([]byte, error)
	// Composite draws img on top of canvas and encodes the result in the
	// canvas format.
	Composite(ctx context.Context, canvas, img []byte, gravity Gravity) ([]byte, error)
}

type TransformerConfig struct {
	Engine     string
	ScratchDir string
}

// NewTransformer builds the transformer selected by cfg.Engine. The std engine
// is backed by libvips when built with the govips tag.
func NewTransformer(cfg TransformerConfig) (Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case "", EngineStd:
		return newTransformer()
	case EngineMagick:
		return NewMagickTransformer(cfg.ScratchDir)
	default:
		return nil, fmt.Errorf("unknown transform engine: %s", cfg.Engine)
	}
}

func scaledSize(srcWidth, srcHeight, width, height int) (int, int, error) {
	if srcWidth <= 0 || srcHeight <= 0 {
		return 0, 0, errors.New("source image has invalid dimensions")
	}

	switch {
	case width <= 0 && height <= 0:
		return 0, 0, ErrMissingDimensions
	case width <= 0:
		width = int(math.Round(float64(srcWidth) * float64(height) / float64(srcHeight)))
	case height <= 0:
		height = int(math.Round(float64(srcHeight) * float64(width) / float64(srcWidth)))
	}
	return max(1, width), max(1, height), nil
}

func backgroundColor(background string) (color.NRGBA, error) {
	background = strings.TrimPrefix(strings.TrimSpace(background), "#")
	if background == "" || strings.EqualFold(background, style.BackgroundNone) {
		return color.NRGBA{}, nil
	}

	if len(background) == 3 {
		background = string([]byte{
			background[0], background[0],
			background[1], background[1],
			background[2], background[2],
		})
	}
	if len(background) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid background color: %q", background)
	}

	rgb, err := strconv.ParseUint(background, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid background color %q: %w", background, err)
	}
	return color.NRGBA{
		R: uint8(rgb >> 16),
		G: uint8(rgb >> 8),
		B: uint8(rgb),
		A: 255,
	}, nil
}

// gravityOffset returns where the top-left corner of an overlay sized
// overlay lands on canvas.
func gravityOffset(gravity Gravity, canvas, overlay image.Rectangle) image.Point {
	cw, ch := canvas.Dx(), canvas.Dy()
	ow, oh := overlay.Dx(), overlay.Dy()

	x := (cw - ow) / 2
	y := (ch - oh) / 2

	switch gravity {
	case GravityNorth, GravityNorthEast, GravityNorthWest:
		y = 0
	case GravitySouth, GravitySouthEast, GravitySouthWest:
		y = ch - oh
	}
	switch gravity {
	case GravityWest, GravityNorthWest, GravitySouthWest:
		x = 0
	case GravityEast, GravityNorthEast, GravitySouthEast:
		x = cw - ow
	}

	return canvas.Min.Add(image.Pt(x, y))
}

func detectFormat(data []byte) (style.Format, error) {
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("detect image format: %w", err)
	}
	return formatFromName(name)
}

func formatFromName(name string) (style.Format, error) {
	switch strings.ToLower(name) {
	case "jpeg", "jpg":
		return style.JPG, nil
	case "png":
		return style.PNG, nil
	case "gif":
		return style.GIF, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}
