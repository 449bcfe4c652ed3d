package transactor

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

const revertedMarker = "execution reverted"

var (
	errorSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
	panicSelector = crypto.Keccak256([]byte("Panic(uint256)"))[:4]
)

// revert describes a remote rejection decoded from an RPC error.
type revert struct {
	reason    string
	hasReason bool
	data      []byte
}

// decodeRevert inspects err for an EVM revert. ok is false for transport level failures.
func decodeRevert(err error) (rev revert, ok bool) {
	if err == nil {
		return revert{}, false
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, decoded := revertData(dataErr.ErrorData()); decoded {
			rev = revertFromData(data)
			ok = true
		}
	}

	msg := err.Error()
	idx := strings.Index(msg, revertedMarker)
	if idx < 0 {
		return rev, ok
	}

	if !rev.hasReason {
		// nodes that drop the data field still put the reason in the message
		rest := strings.TrimPrefix(msg[idx+len(revertedMarker):], ":")
		if rest = strings.TrimSpace(rest); rest != "" && len(rev.data) == 0 {
			rev.reason = rest
			rev.hasReason = true
		}
	}
	return rev, true
}

func revertData(raw any) ([]byte, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		// "0x" alone is a revert without data
		if s == "0x" {
			return []byte{}, true
		}
		return nil, false
	}
	return data, true
}

// revertFromData decodes Error(string) and Panic(uint256) payloads. Custom errors keep their raw
// data and carry no reason string.
func revertFromData(data []byte) revert {
	rev := revert{data: data}
	if len(data) < 4 {
		return rev
	}

	if bytes.Equal(data[:4], errorSelector) || bytes.Equal(data[:4], panicSelector) {
		if reason, err := abi.UnpackRevert(data); err == nil {
			rev.reason = reason
			rev.hasReason = true
		}
	}
	return rev
}

func (r revert) detail() string {
	if !r.hasReason && len(r.data) >= 4 {
		return fmt.Sprintf("reverted with custom error data %s", hexutil.Encode(r.data))
	}
	return "execution reverted"
}
