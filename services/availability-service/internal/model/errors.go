package model

import "errors"

// ErrNotFound is returned (wrapped) by catalogue lookups for unknown products or packages.
var ErrNotFound = errors.New("not found")
