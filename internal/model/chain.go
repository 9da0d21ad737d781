package model

// ChainContext is the currently selected network.
type ChainContext struct {
	Name string `json:"name"`
	ID   uint64 `json:"id"`
	RPC  string `json:"rpc"`
}
