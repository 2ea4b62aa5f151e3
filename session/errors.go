package session

import "errors"

var (
	EmptyUserIDErr = errors.New("empty user id")
	NilStoreErr    = errors.New("shared store is required")
)
