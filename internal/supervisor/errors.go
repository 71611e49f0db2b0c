package supervisor

import "errors"

// ErrTurnLimit indicates a session has used up its conversation turn
// budget. The turn is still recorded; no tasks are dispatched.
var ErrTurnLimit = errors.New("conversation turn limit reached")
