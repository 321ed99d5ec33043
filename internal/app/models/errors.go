package models

import "errors"

// Domain specific errors. The dispatcher converts these into
// {success:false} responses; they are never fatal to a connection.
var (
	ErrNotFound           = errors.New("requested item not found")
	ErrConflict           = errors.New("item already exists or conflict")
	ErrUnauthenticated    = errors.New("authentication required or invalid credentials")
	ErrForbidden          = errors.New("action forbidden")
	ErrBadRequest         = errors.New("bad request")
	ErrInvalidCoordinate  = errors.New("coordinate out of representable range")
	ErrInvalidCategory    = errors.New("unknown marker category")
	ErrMarkerExpired      = errors.New("marker has expired")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
