// Package style parses compact style tokens of the form cover.WxH.format.background
// into immutable transformation specs and derives their cache key suffixes.
package style

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxDimension bounds both target axes. Larger values invalidate the whole spec.
const MaxDimension = 2048

// FullSuffix is the cache key suffix of an invalid spec: the untouched source image.
const FullSuffix = "full"

// BackgroundNone selects a transparent canvas.
const BackgroundNone = "none"

type CoverMode string

const (
	Fit  CoverMode = "fit"
	Fill CoverMode = "fill"
)

type Format string

const (
	JPG Format = "jpg"
	PNG Format = "png"
	GIF Format = "gif"
)

// ContentType returns the MIME type of images encoded in f.
func (f Format) ContentType() string {
	switch f {
	case PNG:
		return "image/png"
	case GIF:
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

var (
	dimensionsPattern = regexp.MustCompile(`^(\d+x\d*|\d*x\d+)$`)
	backgroundPattern = regexp.MustCompile(`^([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

// Spec is a parsed style token. The zero value is an invalid spec.
type Spec struct {
	valid         bool
	cover         CoverMode
	widthLiteral  string
	heightLiteral string
	width         int
	height        int
	format        Format
	background    string
}

// Parse turns a style token into a Spec. It never fails: a token that does not
// describe a usable geometry yields a spec with Valid() == false.
//
// Format and background are lenient and fall back to jpg and none. Cover mode and
// dimensions are strict.
func Parse(token string) Spec {
	segments := strings.Split(token, ".")
	if len(segments) > 4 {
		segments = segments[:4]
	}
	for len(segments) < 4 {
		segments = append(segments, "")
	}

	cover := CoverMode(strings.ToLower(segments[0]))
	if cover != Fit && cover != Fill {
		return Spec{}
	}

	if !dimensionsPattern.MatchString(segments[1]) {
		return Spec{}
	}
	widthLiteral, heightLiteral, _ := strings.Cut(segments[1], "x")

	width, ok := dimension(widthLiteral)
	if !ok {
		return Spec{}
	}
	height, ok := dimension(heightLiteral)
	if !ok {
		return Spec{}
	}

	return Spec{
		valid:         true,
		cover:         cover,
		widthLiteral:  widthLiteral,
		heightLiteral: heightLiteral,
		width:         width,
		height:        height,
		format:        parseFormat(segments[2]),
		background:    parseBackground(segments[3]),
	}
}

func dimension(literal string) (int, bool) {
	if literal == "" {
		return 0, true
	}
	value, err := strconv.Atoi(literal)
	if err != nil || value > MaxDimension {
		return 0, false
	}
	return value, true
}

func parseFormat(segment string) Format {
	switch f := Format(strings.ToLower(segment)); f {
	case JPG, PNG, GIF:
		return f
	default:
		return JPG
	}
}

func parseBackground(segment string) string {
	if backgroundPattern.MatchString(segment) {
		return segment
	}
	return BackgroundNone
}

func (s Spec) Valid() bool           { return s.valid }
func (s Spec) Cover() CoverMode      { return s.cover }
func (s Spec) Width() int            { return s.width }
func (s Spec) Height() int           { return s.height }
func (s Spec) WidthLiteral() string  { return s.widthLiteral }
func (s Spec) HeightLiteral() string { return s.heightLiteral }
func (s Spec) Format() Format        { return s.format }
func (s Spec) Background() string    { return s.background }

// KeepAspect reports whether one target axis is absent and must be derived from
// the source aspect ratio. Such requests are resized directly, without a canvas.
func (s Spec) KeepAspect() bool {
	return s.widthLiteral == "" || s.heightLiteral == ""
}

// Token serializes a valid spec back into a style token. Parsing the result
// yields a spec with the same cache key suffix. Invalid specs serialize to "".
func (s Spec) Token() string {
	if !s.valid {
		return ""
	}
	return string(s.cover) + "." + s.widthLiteral + "x" + s.heightLiteral + "." + string(s.format) + "." + s.background
}

// CacheKeySuffix is appended to the filename to form the cache object key.
func (s Spec) CacheKeySuffix() string {
	if !s.valid {
		return FullSuffix
	}
	return strings.ToLower(s.Token())
}

func (s Spec) String() string {
	return s.CacheKeySuffix()
}
