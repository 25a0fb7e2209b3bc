package pipeline

import (
	"errors"
	"strings"

	"github.com/dunamismax/pixelcache/internal/style"
)

var ErrMissingFilename = errors.New("filename is required")

type Request struct {
	Filename string
	Spec     style.Spec
}

func NewRequest(filename, styleToken string) Request {
	return Request{
		Filename: filename,
		Spec:     style.Parse(styleToken),
	}
}

// ParsePath splits an inbound path of the form filename[/styleToken]. Everything
// after the first slash is the style token.
func ParsePath(path string) (Request, error) {
	path = strings.TrimPrefix(path, "/")
	filename, token, _ := strings.Cut(path, "/")
	if strings.TrimSpace(filename) == "" {
		return Request{}, ErrMissingFilename
	}
	return NewRequest(filename, token), nil
}
