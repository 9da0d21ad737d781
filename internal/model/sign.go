package model

import "github.com/ethereum/go-ethereum/signer/core/apitypes"

// SignState is the lifecycle state of an off-chain signature request.
type SignState string

const (
	SignPending SignState = "PENDING"
	SignSigned  SignState = "SIGNED"
	SignError   SignState = "ERROR"
)

// TypedSign is an EIP-712 signature request keyed by its digest.
type TypedSign struct {
	State       SignState           `json:"state"`
	UserAddress string              `json:"user_address,omitempty"`
	Signature   string              `json:"signature,omitempty"`
	Data        *apitypes.TypedData `json:"data,omitempty"`
	Error       string              `json:"error,omitempty"`

	// Seq orders records by first insertion within a chain.
	Seq uint64 `json:"seq"`
}

// PlainSign is a free-text message signature keyed by caller id and signer.
type PlainSign struct {
	State       SignState `json:"state"`
	UserAddress string    `json:"user_address,omitempty"`
	Signature   string    `json:"signature,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// SiweProfile holds the extra fields sent along with a sign-in message.
type SiweProfile struct {
	Email      string `json:"email,omitempty"`
	Country    string `json:"country,omitempty"`
	Occupation string `json:"occupation,omitempty"`
	Whitelist  bool   `json:"whitelist,omitempty"`
}

// SiweSign is a sign-in signature keyed by caller id and signer.
type SiweSign struct {
	State       SignState   `json:"state"`
	UserAddress string      `json:"user_address,omitempty"`
	Signature   string      `json:"signature,omitempty"`
	Message     string      `json:"message,omitempty"`
	Profile     SiweProfile `json:"profile"`
	Error       string      `json:"error,omitempty"`
}

// SignKey builds the composite key used by plain and sign-in requests.
func SignKey(id, userAddress string) string {
	return id + "_" + userAddress
}
