package domain

import "errors"

var (
	ErrValidation   = errors.New("validation error")
	ErrPushDisabled = errors.New("push delivery is not configured")
)
