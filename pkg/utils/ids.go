package utils

import gonanoid "github.com/matoous/go-nanoid/v2"

// NewID returns a 21 character URL-safe id.
func NewID() string {
	return gonanoid.Must()
}
