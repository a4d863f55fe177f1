package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrInvalidMarket    = errors.New("invalid market")
	ErrInvalidStrategy  = errors.New("invalid strategy")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrLegTimeout       = errors.New("leg execution timed out")
	ErrWSDisconnect     = errors.New("websocket disconnected")
)
