package repository

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyClosed = errors.New("room already closed")
)
