package btree

import "errors"

// ErrCorruptTree is returned when a walk revisits a page it has already
// visited in the same traversal, which the format's tree structure never
// produces on its own — it means a page number was corrupted into
// pointing back up (or sideways) into an ancestor.
var ErrCorruptTree = errors.New("btree: cycle detected while walking tree")
