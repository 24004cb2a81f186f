package video

import "errors"

// ErrNotFound is returned when a video row or its source blob is missing.
var ErrNotFound = errors.New("not found")
