package lang

import "errors"

// ErrInvalid indicates a language code whose base is not recognized.
var ErrInvalid = errors.New("invalid language code")
