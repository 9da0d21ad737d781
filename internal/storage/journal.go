package storage

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"chainstate/internal/model"
	"chainstate/internal/store"
)

const journalBuffer = 256

// Journal turns store changes into journal entries and writes them to a
// sink in batches.
type Journal struct {
	sink    Storage
	logger  *zap.Logger
	entries chan model.JournalEntry
	flush   time.Duration
	now     func() time.Time
}

// NewJournal builds a Journal that flushes at least every flushEvery.
func NewJournal(sink Storage, flushEvery time.Duration, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	if flushEvery <= 0 {
		flushEvery = time.Second
	}
	return &Journal{
		sink:    sink,
		logger:  logger,
		entries: make(chan model.JournalEntry, journalBuffer),
		flush:   flushEvery,
		now:     time.Now,
	}
}

// Observe is a store observer. Changes that are not worth journaling are
// ignored; entries are dropped with a warning when the buffer is full.
func (j *Journal) Observe(change store.Change) {
	entry, ok := j.entryFor(change)
	if !ok {
		return
	}
	select {
	case j.entries <- entry:
	default:
		j.logger.Warn("journal buffer full, dropping entry",
			zap.String("kind", entry.Kind),
			zap.String("ref", entry.Ref),
		)
	}
}

func (j *Journal) entryFor(change store.Change) (model.JournalEntry, bool) {
	entry := model.JournalEntry{
		ChainID:    change.ChainID,
		RecordedAt: j.now().UTC().Format(time.RFC3339Nano),
	}
	if tx := change.Transaction; tx != nil {
		entry.Kind = model.EntryTransaction
		entry.Ref = strconv.Itoa(tx.ID)
		entry.Status = string(tx.Status)
		entry.TxHash = tx.TxHash
		entry.Method = tx.Method
		entry.Address = tx.Address
		entry.Error = tx.Error
		return entry, true
	}

	switch act := change.Action.(type) {
	case store.CallFailed:
		entry.Kind = model.EntryCallError
		entry.Ref = string(act.Key)
		entry.Status = string(model.CallError)
		entry.Error = act.Error
	case store.TypedSignProcessed:
		entry.Kind = model.EntrySignature
		entry.Ref = act.Key
		entry.Status = string(model.SignSigned)
		entry.Address = act.UserAddress
	case store.TypedSignFailed:
		entry.Kind = model.EntrySignature
		entry.Ref = act.Key
		entry.Status = string(model.SignError)
		entry.Address = act.UserAddress
		entry.Error = act.Error
	case store.PlainSignProcessed:
		entry.Kind = model.EntrySignature
		entry.Ref = act.ID
		entry.Status = string(model.SignSigned)
		entry.Address = act.UserAddress
	case store.PlainSignFailed:
		entry.Kind = model.EntrySignature
		entry.Ref = act.ID
		entry.Status = string(model.SignError)
		entry.Address = act.UserAddress
		entry.Error = act.Error
	case store.SiweSignProcessed:
		entry.Kind = model.EntrySignature
		entry.Ref = act.ID
		entry.Status = string(model.SignSigned)
		entry.Address = act.UserAddress
	case store.SiweSignFailed:
		entry.Kind = model.EntrySignature
		entry.Ref = act.ID
		entry.Status = string(model.SignError)
		entry.Address = act.UserAddress
		entry.Error = act.Error
	default:
		return model.JournalEntry{}, false
	}
	return entry, true
}

// Run drains observed entries into the sink until ctx is done, then writes
// whatever is still buffered.
func (j *Journal) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.flush)
	defer ticker.Stop()

	var pending []model.JournalEntry
	write := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := j.sink.PutEntries(ctx, pending); err != nil {
			j.logger.Error("write journal", zap.Int("entries", len(pending)), zap.Error(err))
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case entry := <-j.entries:
					pending = append(pending, entry)
				default:
					break drain
				}
			}
			write(context.Background())
			return nil
		case entry := <-j.entries:
			pending = append(pending, entry)
			if len(pending) >= journalBuffer {
				write(ctx)
			}
		case <-ticker.C:
			write(ctx)
		}
	}
}
