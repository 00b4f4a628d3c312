package model

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// NewID creates a time-ordered unique identifier.
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
