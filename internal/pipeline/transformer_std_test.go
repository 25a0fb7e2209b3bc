package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/dunamismax/pixelcache/internal/style"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdTransformerIdentify(t *testing.T) {
	w, h, err := stdTransformer{}.Identify(context.Background(), buildTestPNG(t, 240, 120))
	require.NoError(t, err)
	assert.Equal(t, 240, w)
	assert.Equal(t, 120, h)

	_, _, err = stdTransformer{}.Identify(context.Background(), []byte("not an image"))
	assert.Error(t, err)
}

func TestStdTransformerResize(t *testing.T) {
	src := buildTestPNG(t, 240, 120)

	tests := []struct {
		name          string
		width, height int
		format        style.Format
		wantW, wantH  int
		wantFormat    string
	}{
		{name: "width only", width: 80, format: style.JPG, wantW: 80, wantH: 40, wantFormat: "jpeg"},
		{name: "height only", height: 60, format: style.PNG, wantW: 120, wantH: 60, wantFormat: "png"},
		{name: "both axes", width: 50, height: 50, format: style.GIF, wantW: 50, wantH: 50, wantFormat: "gif"},
		{name: "upscale", width: 480, format: style.PNG, wantW: 480, wantH: 240, wantFormat: "png"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := stdTransformer{}.Resize(context.Background(), src, tc.width, tc.height, tc.format)
			require.NoError(t, err)

			cfg, format := decodeConfig(t, out)
			assert.Equal(t, tc.wantFormat, format)
			assert.Equal(t, tc.wantW, cfg.Width)
			assert.Equal(t, tc.wantH, cfg.Height)
		})
	}

	_, err := stdTransformer{}.Resize(context.Background(), src, 0, 0, style.PNG)
	assert.ErrorIs(t, err, ErrMissingDimensions)
}

func TestStdTransformerCanvasAndComposite(t *testing.T) {
	ctx := context.Background()
	tr := stdTransformer{}

	canvas, err := tr.MakeCanvas(ctx, 100, 50, "f00", style.PNG)
	require.NoError(t, err)

	overlay := buildSolidPNG(t, 50, 50, color.NRGBA{B: 255, A: 255})

	out, err := tr.Composite(ctx, canvas, overlay, GravityCenter)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	assertColor(t, color.NRGBA{R: 255, A: 255}, img.At(5, 25))
	assertColor(t, color.NRGBA{B: 255, A: 255}, img.At(50, 25))
	assertColor(t, color.NRGBA{R: 255, A: 255}, img.At(95, 25))
}

func TestStdTransformerTransparentCanvas(t *testing.T) {
	canvas, err := stdTransformer{}.MakeCanvas(context.Background(), 4, 4, style.BackgroundNone, style.PNG)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(canvas))
	require.NoError(t, err)
	_, _, _, a := img.At(1, 1).RGBA()
	assert.Zero(t, a)

	_, err = stdTransformer{}.MakeCanvas(context.Background(), 0, 4, "fff", style.PNG)
	assert.Error(t, err)
}

func TestStdTransformerTransparentGIF(t *testing.T) {
	ctx := context.Background()
	tr := stdTransformer{}

	canvas, err := tr.MakeCanvas(ctx, 10, 10, style.BackgroundNone, style.GIF)
	require.NoError(t, err)

	overlay := buildSolidPNG(t, 4, 4, color.NRGBA{R: 255, A: 255})
	out, err := tr.Composite(ctx, canvas, overlay, GravityCenter)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "gif", format)

	_, _, _, corner := img.At(0, 0).RGBA()
	assert.Zero(t, corner)
	_, _, _, center := img.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), center)
}

func TestBackgroundColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{in: "none", want: color.NRGBA{}},
		{in: "", want: color.NRGBA{}},
		{in: "fff", want: color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
		{in: "A0B1C2", want: color.NRGBA{R: 0xa0, G: 0xb1, B: 0xc2, A: 255}},
		{in: "#102030", want: color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 255}},
		{in: "12", wantErr: true},
		{in: "ggg", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := backgroundColor(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGravityOffset(t *testing.T) {
	canvas := image.Rect(0, 0, 100, 50)
	overlay := image.Rect(0, 0, 20, 10)

	assert.Equal(t, image.Pt(40, 20), gravityOffset(GravityCenter, canvas, overlay))
	assert.Equal(t, image.Pt(0, 0), gravityOffset(GravityNorthWest, canvas, overlay))
	assert.Equal(t, image.Pt(80, 40), gravityOffset(GravitySouthEast, canvas, overlay))
	assert.Equal(t, image.Pt(40, 0), gravityOffset(GravityNorth, canvas, overlay))
	assert.Equal(t, image.Pt(0, 20), gravityOffset(GravityWest, canvas, overlay))
}

func TestNewTransformerEngines(t *testing.T) {
	tr, err := NewTransformer(TransformerConfig{})
	require.NoError(t, err)
	assert.NotNil(t, tr)

	_, err = NewTransformer(TransformerConfig{Engine: "photoshop"})
	assert.Error(t, err)
}

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func buildSolidPNG(t testing.TB, w, h int, c color.NRGBA) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode solid png: %v", err)
	}
	return buf.Bytes()
}

func decodeConfig(t *testing.T, data []byte) (image.Config, string) {
	t.Helper()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg, format
}

func assertColor(t *testing.T, want color.NRGBA, got color.Color) {
	t.Helper()
	assert.Equal(t, want, color.NRGBAModel.Convert(got).(color.NRGBA))
}
