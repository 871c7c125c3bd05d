package core

import "errors"

// ErrEmptyMessage is returned when a message carries neither text nor an
// image. Persisting such a record is never allowed.
var ErrEmptyMessage = errors.New("message must contain text or an image")
