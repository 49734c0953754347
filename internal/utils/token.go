package utils

import "github.com/google/uuid"

// NewRatingToken returns a random (version 4) UUID used as the public
// handle of a rating.
func NewRatingToken() string {
	return uuid.NewString()
}
