package model

// TxStatus is the lifecycle state of a submitted write.
type TxStatus string

const (
	TxSubmitted TxStatus = "SUBMITTED"
	TxQueued    TxStatus = "QUEUED"
	TxMined     TxStatus = "MINED"
	TxReverted  TxStatus = "REVERTED"
	TxRejected  TxStatus = "REJECTED"
	TxExpired   TxStatus = "EXPIRED"
)

// Terminal reports whether no further transition is allowed.
func (s TxStatus) Terminal() bool {
	switch s {
	case TxMined, TxReverted, TxRejected, TxExpired:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is an edge of the transaction state
// machine. QUEUED -> QUEUED is allowed so each poll can record its attempt.
func CanTransition(from, to TxStatus) bool {
	switch from {
	case TxSubmitted:
		return to == TxQueued || to == TxRejected
	case TxQueued:
		switch to {
		case TxQueued, TxMined, TxReverted, TxExpired, TxRejected:
			return true
		}
	}
	return false
}

// Transaction is one entry of the per-chain append-only write log. ID is the
// position in that log.
type Transaction struct {
	ID       int           `json:"id"`
	Address  string        `json:"address"`
	ABI      string        `json:"abi"`
	Method   string        `json:"method"`
	Args     []interface{} `json:"args,omitempty"`
	TxHash   string        `json:"tx_hash,omitempty"`
	Status   TxStatus      `json:"state"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
}
