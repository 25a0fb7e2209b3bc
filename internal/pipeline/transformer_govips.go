//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelcache/internal/style"
)

type govipsTransformer struct{}

func (govipsTransformer) Identify(ctx context.Context, data []byte) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	img, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return 0, 0, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	return img.Width(), img.Height(), nil
}

func (govipsTransformer) Resize(ctx context.Context, data []byte, width, height int, format style.Format) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	width, height, err = scaledSize(img.Width(), img.Height(), width, height)
	if err != nil {
		return nil, err
	}

	hScale := float64(width) / float64(img.Width())
	vScale := float64(height) / float64(img.Height())
	if err := img.ResizeWithVScale(hScale, vScale, vips.KernelLanczos3); err != nil {
		return nil, fmt.Errorf("resize image: %w", err)
	}

	return exportGovipsImage(img, format)
}

// MakeCanvas renders through the std encoder; a flat canvas gains nothing from libvips.
func (govipsTransformer) MakeCanvas(ctx context.Context, width, height int, background string, format style.Format) ([]byte, error) {
	return stdTransformer{}.MakeCanvas(ctx, width, height, background, format)
}

func (govipsTransformer) Composite(ctx context.Context, canvasData, imgData []byte, gravity Gravity) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, err := govipsFormat(canvasData)
	if err != nil {
		return nil, err
	}

	base, err := vips.NewImageFromBuffer(canvasData)
	if err != nil {
		return nil, fmt.Errorf("decode canvas: %w", err)
	}
	defer base.Close()

	overlay, err := vips.NewImageFromBuffer(imgData)
	if err != nil {
		return nil, fmt.Errorf("decode overlay: %w", err)
	}
	defer overlay.Close()

	at := gravityOffset(
		gravity,
		imageRect(base.Width(), base.Height()),
		imageRect(overlay.Width(), overlay.Height()),
	)
	if err := base.Composite(overlay, vips.BlendModeOver, at.X, at.Y); err != nil {
		return nil, fmt.Errorf("composite image: %w", err)
	}

	return exportGovipsImage(base, format)
}

func govipsFormat(data []byte) (style.Format, error) {
	switch vips.DetermineImageType(data) {
	case vips.ImageTypeJPEG:
		return style.JPG, nil
	case vips.ImageTypePNG:
		return style.PNG, nil
	case vips.ImageTypeGIF:
		return style.GIF, nil
	default:
		return "", fmt.Errorf("%w: canvas", ErrUnsupportedFormat)
	}
}

func exportGovipsImage(img *vips.ImageRef, format style.Format) ([]byte, error) {
	switch format {
	case style.JPG:
		params := vips.NewJpegExportParams()
		params.Quality = jpegQuality
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case style.PNG:
		data, _, err := img.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case style.GIF:
		data, _, err := img.ExportGIF(vips.NewGifExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
