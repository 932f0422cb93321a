package model

import "errors"

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrStoreFull      = errors.New("run store is full")
	ErrStoreCancelled = errors.New("run store has been cancelled")
)
