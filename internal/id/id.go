package id

import "github.com/google/uuid"

// New returns a random identifier used for warm jobs and scratch file names.
func New() string {
	return uuid.NewString()
}
