package service

import "errors"

var (
	ErrNotStarted      = errors.New("service not started")
	ErrBusDisconnected = errors.New("sensor bus disconnected")
)
