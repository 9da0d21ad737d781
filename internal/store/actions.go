package store

import (
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"chainstate/internal/model"
)

// Action is one entry of the store's event vocabulary. The set is closed:
// only types in this package implement it.
type Action interface {
	action()
}

// ChainSelected switches the current chain. Existing partitions are kept.
type ChainSelected struct {
	Chain model.ChainContext
}

// CallRequested marks a read as in flight. Retry > 0 records the attempt number.
type CallRequested struct {
	ChainID uint64
	Key     model.CallKey
	Retry   int
}

// CallSucceeded stores a decoded value together with its load timestamp.
type CallSucceeded struct {
	ChainID   uint64
	Key       model.CallKey
	Value     interface{}
	Timestamp int64
}

// CallFailed moves a read to ERROR after retries are exhausted or the call
// could not be encoded.
type CallFailed struct {
	ChainID uint64
	Key     model.CallKey
	Retry   int
	Error   string
}

// SubscriptionAdded registers a named subscription due at the current tick.
type SubscriptionAdded struct {
	ChainID    uint64
	Name       string
	Calls      []model.CallSpec
	ClockCount int
}

// SubscriptionRemoved drops a subscription; an unknown name is ignored.
type SubscriptionRemoved struct {
	ChainID uint64
	Name    string
}

// SubscriptionAdvanced moves a subscription's next due tick forward by its
// clock count.
type SubscriptionAdvanced struct {
	ChainID uint64
	Name    string
}

// ClockIncreased advances the global refresh clock by one tick.
type ClockIncreased struct{}

// TransactSubmitted appends a transaction in SUBMITTED state. The assigned
// index is returned in Result.TxID.
type TransactSubmitted struct {
	ChainID uint64
	Address string
	ABI     string
	Method  string
	Args    []interface{}
}

// TransactQueued records the broadcast hash, or another pending poll.
type TransactQueued struct {
	ChainID uint64
	ID      int
	TxHash  string
	Attempt int
}

// TransactRejected ends a transaction the signer or the node refused.
type TransactRejected struct {
	ChainID uint64
	ID      int
	Error   string
}

// TransactMined ends a transaction whose receipt reports success.
type TransactMined struct {
	ChainID uint64
	ID      int
}

// TransactReverted ends a transaction whose receipt reports failure.
type TransactReverted struct {
	ChainID uint64
	ID      int
	Error   string
}

// TransactExpired ends a transaction that never got a receipt.
type TransactExpired struct {
	ChainID uint64
	ID      int
}

// TypedSignRequested marks an EIP-712 request as pending.
type TypedSignRequested struct {
	ChainID uint64
	Key     string
}

// TypedSignProcessed stores a completed EIP-712 signature.
type TypedSignProcessed struct {
	ChainID     uint64
	Key         string
	UserAddress string
	Signature   string
	Data        *apitypes.TypedData
}

// TypedSignFailed records why an EIP-712 request failed.
type TypedSignFailed struct {
	ChainID     uint64
	Key         string
	UserAddress string
	Error       string
}

// PlainSignRequested marks a message signature as pending.
type PlainSignRequested struct {
	ChainID     uint64
	ID          string
	UserAddress string
}

// PlainSignProcessed stores a completed message signature.
type PlainSignProcessed struct {
	ChainID     uint64
	ID          string
	UserAddress string
	Signature   string
	Message     string
}

// PlainSignFailed records why a message signature failed.
type PlainSignFailed struct {
	ChainID     uint64
	ID          string
	UserAddress string
	Error       string
}

// SiweSignRequested marks a sign-in request as pending.
type SiweSignRequested struct {
	ChainID     uint64
	ID          string
	UserAddress string
}

// SiweSignProcessed stores a sign-in signature with its profile fields.
type SiweSignProcessed struct {
	ChainID     uint64
	ID          string
	UserAddress string
	Signature   string
	Message     string
	Profile     model.SiweProfile
}

// SiweSignRestored records a sign-in signature obtained outside this process,
// e.g. reloaded from a session.
type SiweSignRestored SiweSignProcessed

// SiweSignFailed records why a sign-in request failed.
type SiweSignFailed struct {
	ChainID     uint64
	ID          string
	UserAddress string
	Error       string
}

func (ChainSelected) action()        {}
func (CallRequested) action()        {}
func (CallSucceeded) action()        {}
func (CallFailed) action()           {}
func (SubscriptionAdded) action()    {}
func (SubscriptionRemoved) action()  {}
func (SubscriptionAdvanced) action() {}
func (ClockIncreased) action()       {}
func (TransactSubmitted) action()    {}
func (TransactQueued) action()       {}
func (TransactRejected) action()     {}
func (TransactMined) action()        {}
func (TransactReverted) action()     {}
func (TransactExpired) action()      {}
func (TypedSignRequested) action()   {}
func (TypedSignProcessed) action()   {}
func (TypedSignFailed) action()      {}
func (PlainSignRequested) action()   {}
func (PlainSignProcessed) action()   {}
func (PlainSignFailed) action()      {}
func (SiweSignRequested) action()    {}
func (SiweSignProcessed) action()    {}
func (SiweSignRestored) action()     {}
func (SiweSignFailed) action()       {}
