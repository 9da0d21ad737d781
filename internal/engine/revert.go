package engine

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var reasonMarkers = []string{`reason":"`, `reason\":\"`}

// ParseRevertReason extracts a human readable reason from a submission
// error. It prefers ABI-encoded revert data carried by the RPC error, then a
// JSON reason field embedded in the message, then the message itself.
func ParseRevertReason(err error) string {
	if err == nil {
		return ""
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := unpackRevertData(dataErr.ErrorData()); ok {
			return reason
		}
	}
	msg := err.Error()
	if reason, ok := reasonFragment(msg); ok {
		return reason
	}
	return msg
}

func unpackRevertData(data interface{}) (string, bool) {
	encoded, ok := data.(string)
	if !ok {
		return "", false
	}
	raw, err := hexutil.Decode(encoded)
	if err != nil {
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil || reason == "" {
		return "", false
	}
	return reason, true
}

func reasonFragment(msg string) (string, bool) {
	for _, marker := range reasonMarkers {
		idx := strings.Index(msg, marker)
		if idx < 0 {
			continue
		}
		rest := msg[idx+len(marker):]
		end := strings.Index(rest, `"`)
		if end < 0 {
			continue
		}
		reason := strings.TrimSuffix(rest[:end], `\`)
		if reason != "" {
			return reason, true
		}
	}
	return "", false
}
