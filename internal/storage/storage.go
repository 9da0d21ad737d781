package storage

import (
	"context"

	"chainstate/internal/model"
)

// Storage defines a sink for journal entries.
type Storage interface {
	PutEntries(ctx context.Context, entries []model.JournalEntry) error
}
