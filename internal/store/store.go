package store

import (
	"errors"
	"fmt"
	"sync"

	"chainstate/internal/model"
)

var (
	ErrUnknownAction       = errors.New("unknown action")
	ErrSubscriptionExists  = errors.New("subscription already exists")
	ErrUnknownTransaction  = errors.New("unknown transaction")
	ErrInvalidTransition   = errors.New("invalid transaction transition")
	ErrUnknownSubscription = errors.New("unknown subscription")
)

// Result carries values assigned while applying an action.
type Result struct {
	// TxID is the index assigned by TransactSubmitted.
	TxID int
}

// Change is delivered to observers after an action has been applied.
type Change struct {
	ChainID uint64
	Action  Action
	// Transaction is the updated record for transaction actions.
	Transaction *model.Transaction
}

type chainState struct {
	calls         map[model.CallKey]model.CallRecord
	callMeta      map[model.CallKey]model.CallMetadata
	subscriptions map[string]model.Subscription
	transactions  []model.Transaction
	typedSigns    map[string]model.TypedSign
	typedSeq      uint64
	plainSigns    map[string]model.PlainSign
	siweSigns     map[string]model.SiweSign
}

func newChainState() *chainState {
	return &chainState{
		calls:         make(map[model.CallKey]model.CallRecord),
		callMeta:      make(map[model.CallKey]model.CallMetadata),
		subscriptions: make(map[string]model.Subscription),
		typedSigns:    make(map[string]model.TypedSign),
		plainSigns:    make(map[string]model.PlainSign),
		siweSigns:     make(map[string]model.SiweSign),
	}
}

// Store is the single aggregate holding every chain partition. It is written
// only through Dispatch; each action is applied atomically.
type Store struct {
	mu        sync.RWMutex
	current   model.ChainContext
	clock     uint64
	chains    map[uint64]*chainState
	observers []func(Change)
}

// New creates a store with the given chain selected.
func New(current model.ChainContext) *Store {
	return &Store{
		current: current,
		chains:  make(map[uint64]*chainState),
	}
}

// Observe registers fn to be called after every applied action.
func (s *Store) Observe(fn func(Change)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Dispatch applies an action. On error the store is left unchanged.
func (s *Store) Dispatch(a Action) (Result, error) {
	s.mu.Lock()
	change := Change{Action: a}
	res, err := s.apply(a, &change)
	observers := s.observers
	s.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	for _, fn := range observers {
		fn(change)
	}
	return res, nil
}

func (s *Store) chain(id uint64) *chainState {
	cs, ok := s.chains[id]
	if !ok {
		cs = newChainState()
		s.chains[id] = cs
	}
	return cs
}

func (s *Store) apply(a Action, change *Change) (Result, error) {
	switch act := a.(type) {
	case ChainSelected:
		s.current = act.Chain
		change.ChainID = act.Chain.ID

	case ClockIncreased:
		s.clock++
		change.ChainID = s.current.ID

	case CallRequested:
		cs := s.chain(act.ChainID)
		rec := cs.calls[act.Key]
		if rec.Status != model.CallLoaded {
			rec.Status = model.CallLoading
		}
		if act.Retry > 0 {
			rec.Retries = act.Retry
		}
		cs.calls[act.Key] = rec
		change.ChainID = act.ChainID

	case CallSucceeded:
		cs := s.chain(act.ChainID)
		cs.calls[act.Key] = model.CallRecord{Status: model.CallLoaded, Value: act.Value}
		meta := cs.callMeta[act.Key]
		if act.Timestamp > meta.Timestamp {
			meta.Timestamp = act.Timestamp
		}
		cs.callMeta[act.Key] = meta
		change.ChainID = act.ChainID

	case CallFailed:
		cs := s.chain(act.ChainID)
		rec := cs.calls[act.Key]
		rec.Status = model.CallError
		rec.Error = act.Error
		if act.Retry > 0 {
			rec.Retries = act.Retry
		}
		cs.calls[act.Key] = rec
		change.ChainID = act.ChainID

	case SubscriptionAdded:
		cs := s.chain(act.ChainID)
		if _, ok := cs.subscriptions[act.Name]; ok {
			return Result{}, fmt.Errorf("%w: %q", ErrSubscriptionExists, act.Name)
		}
		calls := make([]model.CallSpec, len(act.Calls))
		copy(calls, act.Calls)
		cs.subscriptions[act.Name] = model.Subscription{
			Name:       act.Name,
			Calls:      calls,
			ClockCount: act.ClockCount,
			NextClock:  s.clock,
		}
		change.ChainID = act.ChainID

	case SubscriptionRemoved:
		if cs, ok := s.chains[act.ChainID]; ok {
			delete(cs.subscriptions, act.Name)
		}
		change.ChainID = act.ChainID

	case SubscriptionAdvanced:
		cs := s.chain(act.ChainID)
		sub, ok := cs.subscriptions[act.Name]
		if !ok {
			return Result{}, fmt.Errorf("%w: %q", ErrUnknownSubscription, act.Name)
		}
		sub.NextClock += uint64(sub.ClockCount)
		cs.subscriptions[act.Name] = sub
		change.ChainID = act.ChainID

	case TransactSubmitted:
		cs := s.chain(act.ChainID)
		tx := model.Transaction{
			ID:      len(cs.transactions),
			Address: act.Address,
			ABI:     act.ABI,
			Method:  act.Method,
			Args:    act.Args,
			Status:  model.TxSubmitted,
		}
		cs.transactions = append(cs.transactions, tx)
		change.ChainID = act.ChainID
		change.Transaction = &tx
		return Result{TxID: tx.ID}, nil

	case TransactQueued:
		return s.transition(act.ChainID, act.ID, model.TxQueued, change, func(tx *model.Transaction) {
			tx.TxHash = act.TxHash
			tx.Attempts = act.Attempt
		})

	case TransactRejected:
		return s.transition(act.ChainID, act.ID, model.TxRejected, change, func(tx *model.Transaction) {
			tx.Error = act.Error
		})

	case TransactMined:
		return s.transition(act.ChainID, act.ID, model.TxMined, change, nil)

	case TransactReverted:
		return s.transition(act.ChainID, act.ID, model.TxReverted, change, func(tx *model.Transaction) {
			tx.Error = act.Error
		})

	case TransactExpired:
		return s.transition(act.ChainID, act.ID, model.TxExpired, change, nil)

	case TypedSignRequested:
		cs := s.chain(act.ChainID)
		seq := cs.typedSeq
		if prev, ok := cs.typedSigns[act.Key]; ok {
			seq = prev.Seq
		} else {
			cs.typedSeq++
		}
		cs.typedSigns[act.Key] = model.TypedSign{State: model.SignPending, Seq: seq}
		change.ChainID = act.ChainID

	case TypedSignProcessed:
		cs := s.chain(act.ChainID)
		seq := cs.typedSeq
		if prev, ok := cs.typedSigns[act.Key]; ok {
			seq = prev.Seq
		} else {
			cs.typedSeq++
		}
		cs.typedSigns[act.Key] = model.TypedSign{
			State:       model.SignSigned,
			UserAddress: act.UserAddress,
			Signature:   act.Signature,
			Data:        act.Data,
			Seq:         seq,
		}
		change.ChainID = act.ChainID

	case TypedSignFailed:
		cs := s.chain(act.ChainID)
		rec, ok := cs.typedSigns[act.Key]
		if !ok {
			rec.Seq = cs.typedSeq
			cs.typedSeq++
		}
		rec.State = model.SignError
		rec.Error = act.Error
		rec.UserAddress = act.UserAddress
		cs.typedSigns[act.Key] = rec
		change.ChainID = act.ChainID

	case PlainSignRequested:
		cs := s.chain(act.ChainID)
		cs.plainSigns[model.SignKey(act.ID, act.UserAddress)] = model.PlainSign{State: model.SignPending}
		change.ChainID = act.ChainID

	case PlainSignProcessed:
		cs := s.chain(act.ChainID)
		cs.plainSigns[model.SignKey(act.ID, act.UserAddress)] = model.PlainSign{
			State:       model.SignSigned,
			UserAddress: act.UserAddress,
			Signature:   act.Signature,
			Message:     act.Message,
		}
		change.ChainID = act.ChainID

	case PlainSignFailed:
		cs := s.chain(act.ChainID)
		key := model.SignKey(act.ID, act.UserAddress)
		rec := cs.plainSigns[key]
		rec.State = model.SignError
		rec.Error = act.Error
		rec.UserAddress = act.UserAddress
		cs.plainSigns[key] = rec
		change.ChainID = act.ChainID

	case SiweSignRequested:
		cs := s.chain(act.ChainID)
		cs.siweSigns[model.SignKey(act.ID, act.UserAddress)] = model.SiweSign{State: model.SignPending}
		change.ChainID = act.ChainID

	case SiweSignProcessed:
		s.putSiwe(act)
		change.ChainID = act.ChainID

	case SiweSignRestored:
		s.putSiwe(SiweSignProcessed(act))
		change.ChainID = act.ChainID

	case SiweSignFailed:
		cs := s.chain(act.ChainID)
		key := model.SignKey(act.ID, act.UserAddress)
		rec := cs.siweSigns[key]
		rec.State = model.SignError
		rec.Error = act.Error
		rec.UserAddress = act.UserAddress
		cs.siweSigns[key] = rec
		change.ChainID = act.ChainID

	default:
		return Result{}, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}

	return Result{}, nil
}

func (s *Store) putSiwe(act SiweSignProcessed) {
	cs := s.chain(act.ChainID)
	cs.siweSigns[model.SignKey(act.ID, act.UserAddress)] = model.SiweSign{
		State:       model.SignSigned,
		UserAddress: act.UserAddress,
		Signature:   act.Signature,
		Message:     act.Message,
		Profile:     act.Profile,
	}
}

func (s *Store) transition(chainID uint64, id int, to model.TxStatus, change *Change, mutate func(*model.Transaction)) (Result, error) {
	cs, ok := s.chains[chainID]
	if !ok || id < 0 || id >= len(cs.transactions) {
		return Result{}, fmt.Errorf("%w: chain %d id %d", ErrUnknownTransaction, chainID, id)
	}

	tx := cs.transactions[id]
	if !model.CanTransition(tx.Status, to) {
		return Result{}, fmt.Errorf("%w: %s -> %s (id %d)", ErrInvalidTransition, tx.Status, to, id)
	}
	tx.Status = to
	if mutate != nil {
		mutate(&tx)
	}
	cs.transactions[id] = tx

	change.ChainID = chainID
	change.Transaction = &tx
	return Result{TxID: id}, nil
}
