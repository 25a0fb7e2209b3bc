package style

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		srcW, srcH int
		wantW      int
		wantH      int
	}{
		{name: "fill landscape constrains height", token: "fill.200x100", srcW: 800, srcH: 400, wantH: 100},
		{name: "fill portrait constrains width", token: "fill.200x100", srcW: 400, srcH: 800, wantW: 200},
		{name: "fit landscape constrains width", token: "fit.200x100", srcW: 800, srcH: 400, wantW: 200},
		{name: "fit portrait constrains height", token: "fit.200x100", srcW: 400, srcH: 800, wantH: 100},
		{name: "square counts as landscape", token: "fit.50x70", srcW: 300, srcH: 300, wantW: 50},
		{name: "fill never enlarges", token: "fill.500x500", srcW: 120, srcH: 60, wantH: 60},
		{name: "fit never enlarges", token: "fit.500x500", srcW: 40, srcH: 90, wantH: 90},
		{name: "fit with both axes still constrains one", token: "fit.200x200", srcW: 1000, srcH: 10, wantW: 200},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h := Resolve(Parse(tc.token), tc.srcW, tc.srcH)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
		})
	}
}

func TestResolveStaysWithinSourceAndTarget(t *testing.T) {
	sizes := []int{1, 7, 64, 100, 333, 1024, 2048, 4000}
	for _, cover := range []string{"fit", "fill"} {
		for _, tw := range sizes[:7] {
			for _, th := range sizes[:7] {
				spec := Parse(cover + "." + strconv.Itoa(tw) + "x" + strconv.Itoa(th))
				for _, sw := range sizes {
					for _, sh := range sizes {
						w, h := Resolve(spec, sw, sh)
						if w != 0 {
							assert.Zero(t, h)
							assert.LessOrEqual(t, w, min(sw, tw))
						} else {
							assert.LessOrEqual(t, h, min(sh, th))
						}
					}
				}
			}
		}
	}
}
