package ports

import (
	"time"

	"pyrename/internal/data/history"
)

// Journal persists one record per rename operation.
type Journal interface {
	Record(entry history.Entry) error
}

// HistoryReader lists journaled operations, newest first.
type HistoryReader interface {
	List(limit int, since time.Time) ([]history.Entry, error)
}
