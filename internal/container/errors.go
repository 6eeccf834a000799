package container

import "errors"

var (
	ErrNotFound    = errors.New("container: not found")
	ErrExists      = errors.New("container: already exists")
	ErrGone        = errors.New("container: deleted")
	ErrClosed      = errors.New("container: closed")
	ErrUnsupported = errors.New("container: unsupported control code")
	ErrCapacity    = errors.New("container: capacity exceeded")
	ErrInvalid     = errors.New("container: invalid argument")
)
