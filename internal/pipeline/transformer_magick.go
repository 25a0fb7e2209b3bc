package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelcache/internal/id"
	"github.com/dunamismax/pixelcache/internal/style"
)

// MagickTransformer shells out to ImageMagick. Intermediates live as files in
// the scratch directory and are removed after every call.
type MagickTransformer struct {
	legacy     bool
	scratchDir string
}

func NewMagickTransformer(scratchDir string) (*MagickTransformer, error) {
	if strings.TrimSpace(scratchDir) == "" {
		scratchDir = os.TempDir()
	}
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	m := &MagickTransformer{scratchDir: scratchDir}
	switch {
	case exec.Command("magick", "-version").Run() == nil:
	case exec.Command("convert", "-version").Run() == nil:
		m.legacy = true
	default:
		return nil, errors.New("magick binary not available")
	}

	return m, nil
}

func (m *MagickTransformer) Identify(ctx context.Context, data []byte) (int, int, error) {
	in, err := m.writeScratch(data)
	if err != nil {
		return 0, 0, err
	}
	defer os.Remove(in)

	out, err := m.run(ctx, "identify", "-format", "%w %h", in+"[0]")
	if err != nil {
		return 0, 0, err
	}

	fields := strings.Fields(string(out))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected identify output: %q", out)
	}
	width, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse identify width: %w", err)
	}
	height, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse identify height: %w", err)
	}
	return width, height, nil
}

func (m *MagickTransformer) Resize(ctx context.Context, data []byte, width, height int, format style.Format) ([]byte, error) {
	if width <= 0 && height <= 0 {
		return nil, ErrMissingDimensions
	}

	in, err := m.writeScratch(data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(in)

	geometry := magickDimension(width) + "x" + magickDimension(height)
	if width > 0 && height > 0 {
		geometry += "!"
	}

	return m.render(ctx, format, "convert", in+"[0]", "-resize", geometry)
}

func (m *MagickTransformer) MakeCanvas(ctx context.Context, width, height int, background string, format style.Format) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("canvas requires positive dimensions, got %dx%d", width, height)
	}

	fill := "none"
	if !strings.EqualFold(background, style.BackgroundNone) && background != "" {
		if _, err := backgroundColor(background); err != nil {
			return nil, err
		}
		fill = "#" + strings.TrimPrefix(background, "#")
	}

	return m.render(ctx, format, "convert", "-size", fmt.Sprintf("%dx%d", width, height), "xc:"+fill)
}

func (m *MagickTransformer) Composite(ctx context.Context, canvasData, imgData []byte, gravity Gravity) ([]byte, error) {
	format, err := detectFormat(canvasData)
	if err != nil {
		return nil, err
	}

	canvas, err := m.writeScratch(canvasData)
	if err != nil {
		return nil, err
	}
	defer os.Remove(canvas)

	overlay, err := m.writeScratch(imgData)
	if err != nil {
		return nil, err
	}
	defer os.Remove(overlay)

	return m.render(ctx, format, "composite", "-gravity", string(gravity), overlay+"[0]", canvas+"[0]")
}

// render runs tool with args and an output file in format appended, returning
// the produced bytes.
func (m *MagickTransformer) render(ctx context.Context, format style.Format, tool string, args ...string) ([]byte, error) {
	out := filepath.Join(m.scratchDir, id.New()+"."+string(format))
	defer os.Remove(out)

	if _, err := m.run(ctx, tool, append(args, out)...); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read magick output: %w", err)
	}
	return data, nil
}

func (m *MagickTransformer) run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	argv := append(m.command(tool), args...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("magick %s failed: %w: %s", tool, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (m *MagickTransformer) command(tool string) []string {
	switch {
	case m.legacy:
		return []string{tool}
	case tool == "convert":
		return []string{"magick"}
	default:
		return []string{"magick", tool}
	}
}

func (m *MagickTransformer) writeScratch(data []byte) (string, error) {
	path := filepath.Join(m.scratchDir, id.New())
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return path, nil
}

func magickDimension(v int) string {
	if v <= 0 {
		return ""
	}
	return strconv.Itoa(v)
}
