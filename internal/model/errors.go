package model

import "errors"

// Storage-level errors shared by every store implementation.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateComplete = errors.New("a completed submission already exists")
)
