package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWarmRequestValidate(t *testing.T) {
	tooMany := make([]string, MaxWarmStyles+1)
	for i := range tooMany {
		tooMany[i] = "fit.100x100"
	}

	tests := []struct {
		name    string
		req     WarmRequest
		wantErr string
	}{
		{
			name: "valid",
			req:  WarmRequest{Filename: "cat.png", Styles: []string{"fit.200x200.png", "fill.50x50"}},
		},
		{
			name:    "missing filename",
			req:     WarmRequest{Styles: []string{"fit.200x200"}},
			wantErr: "filename is required",
		},
		{
			name:    "nested filename",
			req:     WarmRequest{Filename: "a/b.png", Styles: []string{"fit.200x200"}},
			wantErr: "must not contain",
		},
		{
			name:    "no styles",
			req:     WarmRequest{Filename: "cat.png"},
			wantErr: "at least one",
		},
		{
			name:    "blank style",
			req:     WarmRequest{Filename: "cat.png", Styles: []string{"fit.200x200", " "}},
			wantErr: "styles[1]",
		},
		{
			name:    "too many styles",
			req:     WarmRequest{Filename: "cat.png", Styles: tooMany},
			wantErr: "at most",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
			}
		})
	}
}

func TestWarmJobTerminal(t *testing.T) {
	assert.False(t, WarmJob{Status: JobStatusQueued}.Terminal())
	assert.False(t, WarmJob{Status: JobStatusProcessing}.Terminal())
	assert.True(t, WarmJob{Status: JobStatusSucceeded}.Terminal())
	assert.True(t, WarmJob{Status: JobStatusFailed}.Terminal())
}
