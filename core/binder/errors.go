package binder

import "errors"

var (
	// ErrUnsupportedMediaType indicates the Content-Type is not one the binder accepts.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrFailedToParseJSON indicates the body is not valid JSON for the target type.
	ErrFailedToParseJSON = errors.New("failed to parse JSON request body")

	// ErrMissingContentType indicates the request lacks a Content-Type header.
	ErrMissingContentType = errors.New("missing content type")
)
