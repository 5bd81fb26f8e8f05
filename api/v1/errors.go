package v1

import "errors"

var (
	ErrFetchCtx    = errors.New("fetch request missing in context")
	ErrContentType = errors.New("Content-Type must be application/json")
	ErrUpgrade     = errors.New("websocket upgrade failed")
)
