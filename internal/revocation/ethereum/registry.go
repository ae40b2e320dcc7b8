// Package ethereum binds the revocation registry contract on an EVM chain.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"titulaciones/internal/revocation"
	"titulaciones/pkg/platform/sentinel"
)

// RegistryABI is the subset of the contract the issuer calls.
const RegistryABI = `[
	{"type":"function","name":"isRevoked","stateMutability":"view",
	 "inputs":[{"name":"hash","type":"bytes32"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"revokeTitulacion","stateMutability":"nonpayable",
	 "inputs":[{"name":"hash","type":"bytes32"}],
	 "outputs":[]}
]`

// Config locates the contract and the account paying for revocations.
type Config struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64
	SenderKeyHex    string
}

// Validate checks the config is complete.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("ledger rpc url is required")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("invalid contract address %q", c.ContractAddress)
	}
	if c.ChainID <= 0 {
		return errors.New("ledger chain id must be positive")
	}
	if c.SenderKeyHex == "" {
		return errors.New("ledger sender key is required")
	}
	return nil
}

// Registry implements revocation.Registry over JSON-RPC.
type Registry struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	auth     *bind.TransactOpts

	// serialises submissions so pending nonces are not reused
	sendMu sync.Mutex
}

// Dial connects to the node and binds the contract.
func Dial(ctx context.Context, cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, err := parseSenderKey(cfg.SenderKeyHex)
	if err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	address := common.HexToAddress(cfg.ContractAddress)
	return &Registry{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		auth:     auth,
	}, nil
}

// Close releases the RPC connection.
func (r *Registry) Close() {
	r.client.Close()
}

func (r *Registry) IsRevoked(ctx context.Context, hash revocation.ContentHash) (bool, error) {
	var out []any
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isRevoked", [32]byte(hash)); err != nil {
		return false, fmt.Errorf("isRevoked call: %w", classify(err))
	}
	if len(out) != 1 {
		return false, fmt.Errorf("isRevoked returned %d values: %w", len(out), sentinel.ErrUnavailable)
	}
	revoked, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("isRevoked returned %T: %w", out[0], sentinel.ErrUnavailable)
	}
	return revoked, nil
}

// RevokeTitulacion submits the transaction and waits for it to be mined.
func (r *Registry) RevokeTitulacion(ctx context.Context, hash revocation.ContentHash) (*revocation.Receipt, error) {
	r.sendMu.Lock()
	opts := *r.auth
	opts.Context = ctx
	tx, err := r.contract.Transact(&opts, "revokeTitulacion", [32]byte(hash))
	r.sendMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("revokeTitulacion submit: %w", classify(err))
	}

	receipt, err := bind.WaitMined(ctx, r.client, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), classify(err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted: %w", tx.Hash().Hex(), sentinel.ErrRejected)
	}
	return &revocation.Receipt{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

func parseSenderKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse ledger sender key: %w", err)
	}
	return key, nil
}

// classify maps node errors onto the registry sentinels. Context errors are
// kept so callers can tell a timeout apart.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errors.Join(err, sentinel.ErrUnavailable)
	case strings.Contains(strings.ToLower(err.Error()), "execution reverted"):
		return errors.Join(err, sentinel.ErrRejected)
	default:
		return errors.Join(err, sentinel.ErrUnavailable)
	}
}
