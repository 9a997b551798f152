// Package errors defines sentinel errors shared by the CLI and its packages.
package errors

import "errors"

// ErrConfigMissing is returned when the configuration file path does not exist.
var ErrConfigMissing = errors.New("config file not found")

// ErrInvalidConfig is returned when the configuration file fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// ErrUnsupportedPlatform is returned when the host OS is not Linux-family.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ErrAlreadyStopped is returned when a watcher that already reached STOPPED is run again.
var ErrAlreadyStopped = errors.New("watcher already stopped")
