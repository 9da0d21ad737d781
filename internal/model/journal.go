package model

// Journal entry kinds.
const (
	EntryTransaction = "transaction"
	EntryCallError   = "call_error"
	EntrySignature   = "signature"
)

// JournalEntry is one line of the lifecycle journal.
type JournalEntry struct {
	ChainID    uint64 `json:"chain_id"`
	Kind       string `json:"kind"`
	Ref        string `json:"ref"`
	Status     string `json:"status"`
	TxHash     string `json:"tx_hash,omitempty"`
	Method     string `json:"method,omitempty"`
	Address    string `json:"address,omitempty"`
	Error      string `json:"error,omitempty"`
	RecordedAt string `json:"recorded_at"`
}
