package validator

import (
	"net/url"
)

// allowedSchemes is the whitelist of schemes a short link may point to.
// url.Parse lowercases the scheme, so "HTTPS://..." is accepted as well.
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// ValidateURL checks that a URL can be shortened.
// Only the scheme is checked; anything further is the caller's policy.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return ErrEmptyURL
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return ErrMalformedURL
	}

	if !allowedSchemes[parsedURL.Scheme] {
		return ErrInvalidScheme
	}

	return nil
}
