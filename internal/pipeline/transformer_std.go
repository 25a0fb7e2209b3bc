package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/dunamismax/pixelcache/internal/style"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

// gifPalette is a transparent entry followed by the first 255 Plan9 colors, so
// canvases with background none stay transparent.
var gifPalette = append(color.Palette{color.Transparent}, palette.Plan9[:255]...)

type stdTransformer struct{}

func (stdTransformer) Identify(ctx context.Context, data []byte) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func (stdTransformer) Resize(ctx context.Context, data []byte, width, height int, format style.Format) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	bounds := src.Bounds()
	width, height, err = scaledSize(bounds.Dx(), bounds.Dy(), width, height)
	if err != nil {
		return nil, err
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	return encodeImage(dst, format)
}

func (stdTransformer) MakeCanvas(ctx context.Context, width, height int, background string, format style.Format) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("canvas requires positive dimensions, got %dx%d", width, height)
	}

	fill, err := backgroundColor(background)
	if err != nil {
		return nil, err
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)

	return encodeImage(canvas, format)
}

func (stdTransformer) Composite(ctx context.Context, canvasData, imgData []byte, gravity Gravity) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, name, err := image.Decode(bytes.NewReader(canvasData))
	if err != nil {
		return nil, fmt.Errorf("decode canvas: %w", err)
	}
	format, err := formatFromName(name)
	if err != nil {
		return nil, err
	}

	overlay, _, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		return nil, fmt.Errorf("decode overlay: %w", err)
	}

	dst := image.NewNRGBA(base.Bounds())
	draw.Draw(dst, dst.Bounds(), base, base.Bounds().Min, draw.Src)

	at := gravityOffset(gravity, dst.Bounds(), overlay.Bounds())
	target := image.Rectangle{Min: at, Max: at.Add(overlay.Bounds().Size())}
	draw.Draw(dst, target, overlay, overlay.Bounds().Min, draw.Over)

	return encodeImage(dst, format)
}

func encodeImage(img image.Image, format style.Format) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case style.JPG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case style.PNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case style.GIF:
		paletted := image.NewPaletted(img.Bounds(), gifPalette)
		draw.FloydSteinberg.Draw(paletted, paletted.Bounds(), img, img.Bounds().Min)
		if err := gif.Encode(&buf, paletted, nil); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return buf.Bytes(), nil
}
