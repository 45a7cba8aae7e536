package textnorm

import "errors"

// ErrAltered indicates the punctuation model changed the wording instead
// of only adding punctuation.
var ErrAltered = errors.New("punctuation changed the text")
