package module

import "errors"

var (
	// ErrNotFound means the referenced item or module does not currently
	// exist. Never fatal to the process.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported means the targeted module does not implement menus.
	// Distinct from ErrNotFound so callers can tell "no items" from
	// "menus unsupported here".
	ErrUnsupported = errors.New("not supported by this module")

	// ErrInvalidID means an item id did not follow the "module:item"
	// convention.
	ErrInvalidID = errors.New("invalid item id")
)
