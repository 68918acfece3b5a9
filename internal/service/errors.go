package service

import "github.com/rotisserie/eris"

var (
	// ErrSourceUnreachable means the backing sheet could not be read.
	ErrSourceUnreachable = eris.New("data source unreachable")
	// ErrInvalidMerge rejects a merge before anything is persisted.
	ErrInvalidMerge = eris.New("invalid merge")
	// ErrOverlayNotFound is returned when unmerging an entry that does not exist.
	ErrOverlayNotFound = eris.New("overlay entry not found")
)
