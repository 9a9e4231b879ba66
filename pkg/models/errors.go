package models

import "errors"

// ErrInvalidTransition indicates an attempt to move a run out of a state that
// does not allow it, e.g. finishing a run that never started or restarting a
// terminal run.
var ErrInvalidTransition = errors.New("invalid run state transition")
