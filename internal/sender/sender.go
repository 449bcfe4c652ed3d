// Package sender models the identity that signs and pays for transactions. The pipeline only
// sees the Signer capability; where the key lives is up to the implementation.
package sender

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type (
	Signer interface {
		Address() common.Address
		SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
	}

	NonceSource interface {
		PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	}

	// Sender serializes the transactions of one account. Concurrent submissions through the same
	// Sender are ordered and never share a nonce.
	Sender struct {
		signer Signer

		mu        sync.Mutex
		nextNonce uint64
		tracked   bool
	}

	// KeySigner signs with an in-process private key.
	KeySigner struct {
		key     *ecdsa.PrivateKey
		address common.Address
	}
)

func New(signer Signer) *Sender {
	return &Sender{signer: signer}
}

// FromPrivateKey builds a sender from a hex encoded secp256k1 key, with or without 0x.
func FromPrivateKey(privateKeyHex string) (*Sender, error) {
	signer, err := NewKeySigner(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return New(signer), nil
}

func NewKeySigner(privateKeyHex string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewKeySignerFromKey(key), nil
}

func NewKeySignerFromKey(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func (k *KeySigner) Address() common.Address {
	return k.address
}

func (k *KeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), k.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

func (s *Sender) Address() common.Address {
	return s.signer.Address()
}

// Submit allocates the next nonce, lets build construct the transaction, signs it and hands it
// to send. The sender stays locked for the whole sequence; the nonce is only consumed when
// send succeeds.
func (s *Sender) Submit(
	ctx context.Context,
	nonces NonceSource,
	chainID *big.Int,
	build func(nonce uint64) (*types.Transaction, error),
	send func(ctx context.Context, tx *types.Transaction) error,
) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := nonces.PendingNonceAt(ctx, s.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to get pending nonce: %w", err)
	}

	nonce := pending
	if s.tracked && s.nextNonce > nonce {
		nonce = s.nextNonce
	}

	tx, err := build(nonce)
	if err != nil {
		return nil, err
	}

	signed, err := s.signer.SignTx(tx, chainID)
	if err != nil {
		return nil, err
	}

	if err := send(ctx, signed); err != nil {
		// the node decides what the next nonce is after a failed submission
		s.tracked = false
		return nil, err
	}

	s.nextNonce = nonce + 1
	s.tracked = true

	return signed, nil
}
