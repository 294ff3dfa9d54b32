package validator

import "errors"

var (
	ErrEmptyURL      = errors.New("URL cannot be empty")
	ErrMalformedURL  = errors.New("URL cannot be parsed")
	ErrInvalidScheme = errors.New("URL must use http or https scheme")
)
