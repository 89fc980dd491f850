package cmd

import "errors"

var (
	ErrUnknownPolicy   = errors.New("cmd: unknown opening policy")
	ErrInvalidSpare    = errors.New("cmd: spare factor must not be negative")
	ErrInvalidLeafSize = errors.New("cmd: min leaf items must be positive")
)
