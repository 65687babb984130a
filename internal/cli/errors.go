package cli

import "errors"

var (
	ErrEmptyPassphrase = errors.New("passphrase must not be empty")
	ErrUsage           = errors.New("invalid arguments")
)
