package twap

import "errors"

// ErrInvalidSnapshot indicates a ring snapshot that cannot be restored.
var ErrInvalidSnapshot = errors.New("invalid history snapshot")
