package assign

import "errors"

// ErrMaxAttempts means the distinct-carrier ceiling was reached; the
// order is placed on hold and no further batches are created for it.
var ErrMaxAttempts = errors.New("maximum carrier assignment attempts exceeded")

// ErrOrderInactive means the order already shipped, delivered or was
// cancelled; no assignment work applies.
var ErrOrderInactive = errors.New("order is no longer active")
