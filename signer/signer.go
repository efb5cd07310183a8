// Package signer provides the wallet abstractions used across the SDK:
// EIP-191 message signing for login challenges and EIP-1559 transaction
// signing and broadcast for on-chain publication.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces personal-sign signatures proving control of an address.
type Signer interface {
	// SignMessage signs the message using the EIP-191 personal-sign scheme.
	SignMessage(message []byte) ([]byte, error)
	// Address returns the lowercase hex address of the signing key.
	Address() string
}

// TransactionSender broadcasts a prepared transaction on the configured chain.
type TransactionSender interface {
	SendTransaction(ctx context.Context, req *TxRequest) (common.Hash, error)
}

// TxRequest holds the fields of an EIP-1559 transaction as expected by a
// TransactionSender. Gas values are integers; converting them losslessly from
// their wire representation is the caller's responsibility.
type TxRequest struct {
	To                   common.Address
	Data                 []byte
	Gas                  uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Backend is the subset of an Ethereum RPC client needed to broadcast
// transactions. *ethclient.Client satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// LocalSigner signs with an in-process ECDSA private key.
//
// It implements both Signer and TransactionSender. The backend is only
// required for SendTransaction; a LocalSigner without a backend can still
// sign login challenges.
type LocalSigner struct {
	priv    *ecdsa.PrivateKey
	chainID *big.Int
	backend Backend
}

// NewLocalSigner creates a LocalSigner from a hex-encoded private key.
//
// The backend may be nil if the signer is only used for message signing.
func NewLocalSigner(privHex string, chainID int64, backend Backend) (*LocalSigner, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	if chainID <= 0 {
		return nil, fmt.Errorf("chain ID must be greater than 0")
	}
	return &LocalSigner{
		priv:    priv,
		chainID: big.NewInt(chainID),
		backend: backend,
	}, nil
}

// Address returns the lowercase hex address of the signing key.
func (s *LocalSigner) Address() string {
	return strings.ToLower(crypto.PubkeyToAddress(s.priv.PublicKey).Hex())
}

// SignMessage signs the message using the EIP-191 personal-sign scheme.
//
// Returns the signature as r (32 bytes) + s (32 bytes) + v (1 byte, recovery
// ID normalized to 27 or 28).
func (s *LocalSigner) SignMessage(message []byte) ([]byte, error) {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))

	signature, err := crypto.Sign(hash.Bytes(), s.priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	if len(signature) != 65 {
		return nil, fmt.Errorf("invalid signature length: expected 65 bytes, got %d", len(signature))
	}

	// crypto.Sign returns the recovery ID as 0 or 1; wallets expect 27 or 28.
	if signature[64] < 27 {
		signature[64] += 27
	}
	return signature, nil
}

// SendTransaction signs the request as an EIP-1559 transaction and broadcasts
// it through the backend.
//
// The returned hash identifies the transaction whether or not the broadcast
// succeeded. If the backend reports an error, the error is a *BroadcastError:
// the signed transaction was already on the wire, so the caller cannot assume
// it never reached the network.
func (s *LocalSigner) SendTransaction(ctx context.Context, req *TxRequest) (common.Hash, error) {
	if s.backend == nil {
		return common.Hash{}, fmt.Errorf("no RPC backend configured")
	}
	if req == nil {
		return common.Hash{}, fmt.Errorf("transaction request is required")
	}
	if req.MaxFeePerGas == nil || req.MaxPriorityFeePerGas == nil {
		return common.Hash{}, fmt.Errorf("fee caps are required")
	}

	from := crypto.PubkeyToAddress(s.priv.PublicKey)
	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	to := req.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: req.MaxPriorityFeePerGas,
		GasFeeCap: req.MaxFeePerGas,
		Gas:       req.Gas,
		To:        &to,
		Data:      req.Data,
	})

	signed, err := types.SignTx(tx, types.NewLondonSigner(s.chainID), s.priv)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	hash := signed.Hash()
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return hash, &BroadcastError{Hash: hash, Err: err}
	}
	return hash, nil
}

// BroadcastError reports a failure after the signed transaction was handed to
// the RPC backend. The transaction may have reached the network despite the
// error; callers must not blindly resubmit.
type BroadcastError struct {
	Hash common.Hash
	Err  error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("failed to broadcast transaction %s: %v", e.Hash.Hex(), e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }
