package repository

import "errors"

// ErrNotFound indicates an entity was not located upstream.
var ErrNotFound = errors.New("repository: not found")

// ErrUnavailable indicates the upstream service could not serve the request.
var ErrUnavailable = errors.New("repository: upstream unavailable")
