package wire

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microsoft/service-fabric-sub058/internal/container"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToStatus converts a container error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, container.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, container.ErrExists):
		code = codes.AlreadyExists
	case errors.Is(err, container.ErrGone), errors.Is(err, container.ErrClosed):
		code = codes.FailedPrecondition
	case errors.Is(err, container.ErrUnsupported):
		code = codes.Unimplemented
	case errors.Is(err, container.ErrCapacity):
		code = codes.ResourceExhausted
	case errors.Is(err, container.ErrInvalid):
		code = codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// FromStatus converts a gRPC status error back into a container error that
// matches the original sentinel with errors.Is.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	msg := st.Message()
	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = container.ErrNotFound
	case codes.AlreadyExists:
		sentinel = container.ErrExists
	case codes.FailedPrecondition:
		sentinel = container.ErrClosed
		if strings.Contains(msg, container.ErrGone.Error()) {
			sentinel = container.ErrGone
		}
	case codes.Unimplemented:
		sentinel = container.ErrUnsupported
	case codes.ResourceExhausted:
		sentinel = container.ErrCapacity
	case codes.InvalidArgument:
		sentinel = container.ErrInvalid
	case codes.Canceled:
		sentinel = context.Canceled
	case codes.DeadlineExceeded:
		sentinel = context.DeadlineExceeded
	default:
		return err
	}
	msg = strings.TrimPrefix(msg, sentinel.Error())
	msg = strings.TrimPrefix(msg, ": ")
	if msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
