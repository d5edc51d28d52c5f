package server

import "errors"

var (
	ErrMissingAddress       = errors.New("server address is required")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrIncompleteTLS        = errors.New("TLS needs both a certificate and a key file")
)
