package ledger

import "errors"

// ErrBudgetNotFound is returned by operations that require an existing
// budget row (reset, and the HTTP layer's GET/DELETE 404 mapping).
var ErrBudgetNotFound = errors.New("budget not found")
