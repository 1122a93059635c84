package throttle

import (
	"errors"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Config defines the throttler's
// Requests Per Second and Burst Rate
type Config struct {
	RPS   int `yaml:"rps" validate:"gt=0"`
	Burst int `yaml:"burst" validate:"gt=0"`
}
