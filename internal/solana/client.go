// Package solana implements the external BONK token transfer client on top
// of the Solana JSON-RPC API.
package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/memo"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/Serhat17/bonkback/internal/config"
)

var (
	ErrInvalidWallet   = errors.New("invalid wallet address")
	ErrBlockhashFailed = errors.New("failed to fetch recent blockhash")
	ErrSignFailed      = errors.New("failed to sign transaction")
	ErrBroadcastFailed = errors.New("failed to broadcast transaction")
)

// Client sends BONK SPL token transfers. Each transfer carries a memo with
// the caller-supplied deduplication key, so a network-level duplicate send of
// the same payout is distinguishable on chain.
type Client struct {
	rpc         *rpc.Client
	payer       solana.PrivateKey
	payerToken  solana.PublicKey
	mint        solana.PublicKey
	sendTimeout time.Duration
}

// NewClient creates a Solana client from config. The payer secret must be in
// base58 format; the payer's associated BONK token account funds transfers.
func NewClient(cfg *config.SolanaConfig) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("solana.rpc_url is empty in config")
	}
	if cfg.PayerSecret == "" {
		return nil, errors.New("solana.payer_secret is empty in config")
	}

	payer, err := solana.PrivateKeyFromBase58(cfg.PayerSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payer_secret as base58: %w", err)
	}

	mint, err := solana.PublicKeyFromBase58(cfg.BonkMint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bonk_mint as base58: %w", err)
	}

	payerToken, _, err := solana.FindAssociatedTokenAddress(payer.PublicKey(), mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive payer token account: %w", err)
	}

	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpc:         rpc.New(cfg.RPCURL),
		payer:       payer,
		payerToken:  payerToken,
		mint:        mint,
		sendTimeout: timeout,
	}, nil
}

// PayerAddress returns the payer's public key address.
func (c *Client) PayerAddress() string {
	return c.payer.PublicKey().String()
}

// ValidateAddress checks that an address parses as a Solana public key.
func ValidateAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return ErrInvalidWallet
	}
	return nil
}

// Send transfers amount BONK base units to the wallet's associated token
// account. The dedupKey is embedded as an on-chain memo. The RPC round trip
// is bounded by the configured send timeout; callers must not hold balance
// locks across this call.
func (c *Client) Send(ctx context.Context, walletAddress string, amount int64, dedupKey string) (string, error) {
	recipient, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return "", ErrInvalidWallet
	}
	if amount <= 0 {
		return "", errors.New("amount must be positive")
	}

	recipientToken, _, err := solana.FindAssociatedTokenAddress(recipient, c.mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive recipient token account: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBlockhashFailed, err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			token.NewTransferInstruction(
				uint64(amount),
				c.payerToken,
				recipientToken,
				c.payer.PublicKey(),
				nil,
			).Build(),
			memo.NewMemoInstruction([]byte(dedupKey), c.payer.PublicKey()).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(c.payer.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.payer.PublicKey()) {
			return &c.payer
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignFailed, err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}

	log.Info().
		Str("signature", sig.String()).
		Str("wallet", walletAddress).
		Int64("amount", amount).
		Str("dedup_key", dedupKey).
		Msg("BONK transfer broadcast")

	return sig.String(), nil
}
