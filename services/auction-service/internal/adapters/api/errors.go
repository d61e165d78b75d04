package api

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/floroz/lotmarket/services/auction-service/internal/domain/failure"
)

var (
	errInvalidID      = errors.New("invalid id")
	errInvalidEndTime = errors.New("invalid end_time format, want RFC 3339")
)

// toConnectError maps a domain error kind to its connect code
func toConnectError(err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	switch failure.Kind(err) {
	case failure.ErrNotFound:
		return connect.NewError(connect.CodeNotFound, err)
	case failure.ErrValidation:
		return connect.NewError(connect.CodeInvalidArgument, err)
	case failure.ErrConcurrency:
		return connect.NewError(connect.CodeAborted, err)
	case failure.ErrConflict:
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case failure.ErrForbidden:
		return connect.NewError(connect.CodePermissionDenied, err)
	case failure.ErrUnauthenticated:
		return connect.NewError(connect.CodeUnauthenticated, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func invalidArgument(err error) error {
	return connect.NewError(connect.CodeInvalidArgument, err)
}
