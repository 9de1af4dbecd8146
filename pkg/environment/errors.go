package environment

import (
	"errors"
)

var (
	ErrNameTooLong           = errors.New("environment name exceeds 15 characters")
	ErrNoEnvironmentSelected = errors.New("no environment selected")
	ErrNotFound              = errors.New("environment not found")
	ErrAlreadyExists         = errors.New("environment already exists")
	ErrPermission            = errors.New("operation requires root privileges")
)
