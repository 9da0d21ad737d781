package model

// CallStatus is the lifecycle state of a cached read.
type CallStatus string

const (
	CallLoading CallStatus = "LOADING"
	CallLoaded  CallStatus = "LOADED"
	CallError   CallStatus = "ERROR"
)

// CallKey identifies one read against one endpoint.
type CallKey string

// CallSpec describes a contract read: target, ABI name, method and arguments.
type CallSpec struct {
	Address string        `json:"address"`
	ABI     string        `json:"abi"`
	Method  string        `json:"method"`
	Args    []interface{} `json:"args,omitempty"`
}

// CallRecord holds the latest known state of a read.
type CallRecord struct {
	Status  CallStatus  `json:"state"`
	Value   interface{} `json:"value,omitempty"`
	Retries int         `json:"retries,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CallMetadata is kept apart from CallRecord so refresh timestamps can change
// without touching the value readers watch.
type CallMetadata struct {
	Timestamp int64 `json:"timestamp"`
}

// CallView is the selector projection of a record. The zero value means the
// read was never issued.
type CallView struct {
	Status CallStatus  `json:"state,omitempty"`
	Value  interface{} `json:"value,omitempty"`
}
