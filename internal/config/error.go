package config

import "errors"

var ErrMissingAPIURL = errors.New("API_URL is not set")
