package worker

import "errors"

// errPoisoned is returned by Handle methods called after Flush (or after a
// prior error), per the "callers MUST treat the stage as poisoned" rule.
var errPoisoned = errors.New("worker: handle used after flush or error")
