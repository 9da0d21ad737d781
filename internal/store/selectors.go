package store

import (
	"sort"

	"chainstate/internal/model"
)

// CurrentChain returns the selected chain.
func (s *Store) CurrentChain() model.ChainContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// CurrentClock returns the number of clock ticks processed so far.
func (s *Store) CurrentClock() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock
}

// Call returns the record for a key.
func (s *Store) Call(chainID uint64, key model.CallKey) (model.CallRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.chains[chainID]
	if !ok {
		return model.CallRecord{}, false
	}
	rec, ok := cs.calls[key]
	return rec, ok
}

// CallTimestamp returns the last successful load time of a key in epoch millis.
func (s *Store) CallTimestamp(chainID uint64, key model.CallKey) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.chains[chainID]
	if !ok {
		return 0, false
	}
	meta, ok := cs.callMeta[key]
	return meta.Timestamp, ok
}

// CallMultiple projects the records of several keys, preserving order. Keys
// never issued yield a zero CallView.
func (s *Store) CallMultiple(chainID uint64, keys []model.CallKey) []model.CallView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CallView, len(keys))
	cs, ok := s.chains[chainID]
	if !ok {
		return out
	}
	for i, key := range keys {
		if rec, ok := cs.calls[key]; ok {
			out[i] = model.CallView{Status: rec.Status, Value: rec.Value}
		}
	}
	return out
}

// Subscriptions returns the subscriptions of a chain sorted by name.
func (s *Store) Subscriptions(chainID uint64) []model.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscriptionsLocked(chainID, nil)
}

// DueSubscriptions returns, sorted by name, the subscriptions of a chain that
// fire at the current clock.
func (s *Store) DueSubscriptions(chainID uint64) []model.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clock := s.clock
	return s.subscriptionsLocked(chainID, func(sub model.Subscription) bool {
		return sub.Due(clock)
	})
}

func (s *Store) subscriptionsLocked(chainID uint64, keep func(model.Subscription) bool) []model.Subscription {
	cs, ok := s.chains[chainID]
	if !ok {
		return nil
	}
	out := make([]model.Subscription, 0, len(cs.subscriptions))
	for _, sub := range cs.subscriptions {
		if keep != nil && !keep(sub) {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Transactions returns a copy of the write log of a chain.
func (s *Store) Transactions(chainID uint64) []model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.chains[chainID]
	if !ok {
		return nil
	}
	out := make([]model.Transaction, len(cs.transactions))
	copy(out, cs.transactions)
	return out
}

// Transaction returns one entry of the write log.
func (s *Store) Transaction(chainID uint64, id int) (model.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.chains[chainID]
	if !ok || id < 0 || id >= len(cs.transactions) {
		return model.Transaction{}, false
	}
	return cs.transactions[id], true
}

// LastTransaction returns the most recently submitted transaction.
func (s *Store) LastTransaction(chainID uint64) (model.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.chains[chainID]
	if !ok || len(cs.transactions) == 0 {
		return model.Transaction{}, false
	}
	return cs.transactions[len(cs.transactions)-1], true
}

// TypedSign returns the EIP-712 record stored under its digest key.
func (s *Store) TypedSign(chainID uint64, key string) (model.TypedSign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.chains[chainID]
	if !ok {
		return model.TypedSign{}, false
	}
	rec, ok := cs.typedSigns[key]
	return rec, ok
}

// PlainSign looks up a message signature by caller id and signer address.
func (s *Store) PlainSign(chainID uint64, id, userAddress string) (model.PlainSign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.chains[chainID]
	if !ok {
		return model.PlainSign{}, false
	}
	rec, ok := cs.plainSigns[model.SignKey(id, userAddress)]
	return rec, ok
}

// SiweSign looks up a sign-in signature by caller id and signer address.
func (s *Store) SiweSign(chainID uint64, id, userAddress string) (model.SiweSign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.chains[chainID]
	if !ok {
		return model.SiweSign{}, false
	}
	rec, ok := cs.siweSigns[model.SignKey(id, userAddress)]
	return rec, ok
}
