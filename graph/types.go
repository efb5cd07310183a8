package graph

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/beaconlabs/beacon-sdk/signer"
)

// PublishResult is the two-variant outcome of a publish operation.
//
// Exactly one variant is set: Finalized means the service completed the
// operation without an on-chain transaction from the caller; Raw carries
// unsigned transaction parameters the caller must sign and broadcast.
type PublishResult struct {
	Finalized bool            `json:"finalized"`
	Raw       *RawTransaction `json:"raw"`
}

// RawTransaction is an unsigned transaction as returned by the service.
// Numeric gas fields arrive as decimal strings on the wire; they are
// monetary values, so conversion must be exact.
type RawTransaction struct {
	To                   string `json:"to"`
	Data                 string `json:"data"`
	GasLimit             string `json:"gasLimit"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
}

// ToTxRequest converts the wire representation into the signer's integer
// representation. Any field that does not parse exactly is an error; the
// signer is never called with a lossy value.
func (r *RawTransaction) ToTxRequest() (*signer.TxRequest, error) {
	if !common.IsHexAddress(r.To) {
		return nil, fmt.Errorf("invalid destination address %q", r.To)
	}

	data, err := hex.DecodeString(strings.TrimPrefix(r.Data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid transaction data: %w", err)
	}

	gas, err := strconv.ParseUint(r.GasLimit, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid gas limit %q: %w", r.GasLimit, err)
	}

	maxFee, err := parseWei(r.MaxFeePerGas)
	if err != nil {
		return nil, fmt.Errorf("invalid max fee per gas: %w", err)
	}
	maxPriorityFee, err := parseWei(r.MaxPriorityFeePerGas)
	if err != nil {
		return nil, fmt.Errorf("invalid max priority fee per gas: %w", err)
	}

	return &signer.TxRequest{
		To:                   common.HexToAddress(r.To),
		Data:                 data,
		Gas:                  gas,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriorityFee,
	}, nil
}

// parseWei parses a non-negative decimal string into a big integer.
func parseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a decimal integer", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%q is negative", s)
	}
	return v, nil
}

// AccountMetadata is the profile document attached to an account.
type AccountMetadata struct {
	Name    string `json:"name"`
	Bio     string `json:"bio"`
	Picture string `json:"picture"`
}

// Account is an account on the social graph.
type Account struct {
	Address  string           `json:"address"`
	Username string           `json:"username"`
	Owner    string           `json:"owner"`
	Metadata *AccountMetadata `json:"metadata"`
}

// Post is a published content item.
type Post struct {
	ID         string    `json:"id"`
	Author     string    `json:"author"`
	ContentURI string    `json:"contentUri"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PostPage is one page of a feed query. Next is empty on the last page.
type PostPage struct {
	Items []Post `json:"items"`
	Next  string `json:"next"`
}
