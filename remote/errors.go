package remote

import "errors"

var (
	ErrInvalidURL   = errors.New("remote: invalid worker URL")
	ErrConnection   = errors.New("remote: worker connection failed")
	ErrUnauthorized = errors.New("remote: worker rejected credentials")
	ErrProtocol     = errors.New("remote: protocol violation")
	ErrWorker       = errors.New("remote: worker error")
)
