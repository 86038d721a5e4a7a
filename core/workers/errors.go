package workers

import "errors"

// ErrPoolClosed is returned by Submit once Close has been called.
var ErrPoolClosed = errors.New("workers: pool closed")
