package trust

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/netx"
)

const rootSize = 32

// Ledger returns the anchored Merkle root for a user. An all-zero root means
// the user has not been anchored yet.
type Ledger interface {
	Root(ctx context.Context, userID string) ([]byte, error)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type callParams struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

type rpcReply struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// RPCLedger reads roots through an eth_call against the anchoring contract.
type RPCLedger struct {
	client   *netx.Client
	url      string
	contract string
	selector string
}

func NewRPCLedger(client *netx.Client, url, contract, selector string) *RPCLedger {
	return &RPCLedger{client: client, url: url, contract: contract, selector: selector}
}

// EncodeCall builds the call data: the 4-byte function selector followed by
// userID left-aligned in a zero-padded 32-byte word.
func EncodeCall(selector, userID string) (string, error) {
	sel, err := decodeHex(selector)
	if err != nil || len(sel) != 4 {
		return "", fmt.Errorf("%w: function selector %q", common.ErrLogicInvariant, selector)
	}
	if len(userID) == 0 || len(userID) > rootSize {
		return "", fmt.Errorf("%w: user id %q does not fit a 32-byte word", common.ErrLogicInvariant, userID)
	}

	word := make([]byte, rootSize)
	copy(word, userID)

	return "0x" + hex.EncodeToString(sel) + hex.EncodeToString(word), nil
}

func (l *RPCLedger) Root(ctx context.Context, userID string) ([]byte, error) {
	data, err := EncodeCall(l.selector, userID)
	if err != nil {
		return nil, err
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params:  []any{callParams{To: l.contract, Data: data}, "latest"},
	}

	var reply rpcReply
	if err := l.client.PostJSON(ctx, l.url, nil, req, &reply); err != nil {
		return nil, fmt.Errorf("ledger call: %w", err)
	}
	if reply.Error != nil {
		return nil, fmt.Errorf("%w: ledger call: %d %s", common.ErrServerRejected, reply.Error.Code, reply.Error.Message)
	}

	root, err := decodeHex(reply.Result)
	if err != nil || len(root) < rootSize {
		return nil, fmt.Errorf("%w: ledger result %q", common.ErrServerRejected, reply.Result)
	}
	return root[:rootSize], nil
}

// IsZeroRoot reports an unanchored user.
func IsZeroRoot(root []byte) bool {
	return len(root) == 0 || bytes.Count(root, []byte{0}) == len(root)
}
