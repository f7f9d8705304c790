package remover

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InputError is returned when the image name or a tag cannot be used to
// build a reference. No removal is attempted.
type InputError struct {
	Value string
	Err   error
}

func (e *InputError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid input %q", e.Value)
	}
	return fmt.Sprintf("invalid input %q: %v", e.Value, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// OperationError is a removal failure other than not-found.
// Name is the fully-qualified image name being removed.
type OperationError struct {
	Name string
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("failed to remove %q: %v", e.Name, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// NormalizeError maps every not-found signal a transport may produce to
// errdefs.ErrNotFound. Other errors are returned as is.
//
// Recognized channels:
//   - errors satisfying errdefs.IsNotFound (containerd typed errors, and
//     Docker Engine API errors implementing NotFound())
//   - gRPC statuses with codes.NotFound
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errdefs.ErrNotFound) {
		return err
	}
	if errdefs.IsNotFound(err) || isGRPCNotFound(err) {
		return fmt.Errorf("%w: %w", errdefs.ErrNotFound, err)
	}
	return err
}

func isGRPCNotFound(err error) bool {
	var se interface{ GRPCStatus() *status.Status }
	if !errors.As(err, &se) {
		return false
	}
	return se.GRPCStatus().Code() == codes.NotFound
}
