package signer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivKey = "0x8f49e4492f97ca6334e15117fc6c4c06f4652cac7fb27ed4ecc5ef9ea6ad5820"
	testAddress = "0x36e4418dafb9d1e5fff7408f5a57981e240c8f8e"
	testChainID = int64(37111)
)

type fakeBackend struct {
	nonce    uint64
	nonceErr error
	sendErr  error
	sent     []*types.Transaction
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if b.nonceErr != nil {
		return 0, b.nonceErr
	}
	return b.nonce, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return b.sendErr
}

func TestNewLocalSigner(t *testing.T) {
	tests := []struct {
		name    string
		privHex string
		chainID int64
		wantErr string
	}{
		{
			name:    "valid key",
			privHex: testPrivKey,
			chainID: testChainID,
		},
		{
			name:    "valid key without prefix",
			privHex: testPrivKey[2:],
			chainID: testChainID,
		},
		{
			name:    "invalid key",
			privHex: "0xzz",
			chainID: testChainID,
			wantErr: "failed to parse private key",
		},
		{
			name:    "zero chain ID",
			privHex: testPrivKey,
			chainID: 0,
			wantErr: "chain ID must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewLocalSigner(tt.privHex, tt.chainID, nil)
			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testAddress, s.Address())
		})
	}
}

func TestSignMessage(t *testing.T) {
	s, err := NewLocalSigner(testPrivKey, testChainID, nil)
	require.NoError(t, err)

	message := []byte("Sign in with Ethereum to use the Beacon protocol")
	sig, err := s.SignMessage(message)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	// v must be normalized to the wallet convention.
	assert.Contains(t, []byte{27, 28}, sig[64])

	// The signature must recover to the signer's address over the EIP-191
	// prefixed hash.
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))

	recoverable := make([]byte, 65)
	copy(recoverable, sig)
	recoverable[64] -= 27
	pub, err := crypto.SigToPub(hash.Bytes(), recoverable)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), crypto.PubkeyToAddress(*pub))
}

func TestSendTransaction(t *testing.T) {
	to := common.HexToAddress("0x59bE1932048F76f9B0e8e5f6AcCf5Fd8D53136DD")
	validReq := &TxRequest{
		To:                   to,
		Data:                 []byte{0x01, 0x02},
		Gas:                  21000,
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(100_000_000),
	}

	t.Run("broadcasts a signed dynamic fee transaction", func(t *testing.T) {
		backend := &fakeBackend{nonce: 7}
		s, err := NewLocalSigner(testPrivKey, testChainID, backend)
		require.NoError(t, err)

		hash, err := s.SendTransaction(context.Background(), validReq)
		require.NoError(t, err)
		require.Len(t, backend.sent, 1)

		tx := backend.sent[0]
		assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		assert.Equal(t, big.NewInt(testChainID), tx.ChainId())
		assert.Equal(t, uint64(7), tx.Nonce())
		assert.Equal(t, uint64(21000), tx.Gas())
		assert.Equal(t, big.NewInt(2_000_000_000), tx.GasFeeCap())
		assert.Equal(t, big.NewInt(100_000_000), tx.GasTipCap())
		assert.Equal(t, to, *tx.To())
		assert.Equal(t, []byte{0x01, 0x02}, tx.Data())
		assert.Equal(t, tx.Hash(), hash)

		from, err := types.Sender(types.NewLondonSigner(big.NewInt(testChainID)), tx)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(testAddress), from)
	})

	t.Run("backend send failure is a BroadcastError with the hash", func(t *testing.T) {
		backend := &fakeBackend{sendErr: errors.New("connection reset")}
		s, err := NewLocalSigner(testPrivKey, testChainID, backend)
		require.NoError(t, err)

		hash, err := s.SendTransaction(context.Background(), validReq)
		require.Error(t, err)

		var broadcastErr *BroadcastError
		require.ErrorAs(t, err, &broadcastErr)
		assert.Equal(t, hash, broadcastErr.Hash)
		assert.NotEqual(t, common.Hash{}, broadcastErr.Hash)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("nonce failure happens before signing", func(t *testing.T) {
		backend := &fakeBackend{nonceErr: errors.New("rpc unreachable")}
		s, err := NewLocalSigner(testPrivKey, testChainID, backend)
		require.NoError(t, err)

		_, err = s.SendTransaction(context.Background(), validReq)
		require.Error(t, err)
		assert.Empty(t, backend.sent)

		var broadcastErr *BroadcastError
		assert.False(t, errors.As(err, &broadcastErr))
	})

	t.Run("missing backend", func(t *testing.T) {
		s, err := NewLocalSigner(testPrivKey, testChainID, nil)
		require.NoError(t, err)

		_, err = s.SendTransaction(context.Background(), validReq)
		assert.ErrorContains(t, err, "no RPC backend")
	})

	t.Run("missing fee caps", func(t *testing.T) {
		backend := &fakeBackend{}
		s, err := NewLocalSigner(testPrivKey, testChainID, backend)
		require.NoError(t, err)

		_, err = s.SendTransaction(context.Background(), &TxRequest{To: to, Gas: 21000})
		assert.ErrorContains(t, err, "fee caps are required")
		assert.Empty(t, backend.sent)
	})
}
