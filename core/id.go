package core

import "github.com/oklog/ulid/v2"

// NewID returns a new ULID string, used for runner, connection and attempt IDs.
func NewID() string {
	return ulid.Make().String()
}
