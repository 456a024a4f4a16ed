package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Close()
}

// Lending pool minimal ABI: position reads, identity lookup, score write-back,
// alert, and the borrow event used for account discovery.
const poolABI = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"getPosition","outputs":[{"name":"deposits","type":"uint256"},{"name":"borrows","type":"uint256"},{"name":"collateral","type":"uint256"},{"name":"score","type":"uint16"},{"name":"updatedAt","type":"uint64"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"isVerified","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"},{"name":"score","type":"uint16"}],"name":"updateRiskScore","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"account","type":"address"},{"name":"score","type":"uint16"}],"name":"raiseRiskAlert","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"account","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}],"name":"Borrowed","type":"event"}
]`

const (
	// DefaultGasLimit for score and alert transactions when estimation fails.
	DefaultGasLimit = uint64(120000)

	// DefaultTokenDecimals is the decimal precision of pool balances.
	DefaultTokenDecimals = 6

	// DefaultEventLookback is how many blocks back BorrowerCandidates scans.
	DefaultEventLookback = uint64(50000)
)

// Config for creating an EVM-backed ledger client.
type Config struct {
	RPCURL        string
	PrivateKey    string // Hex string, optional; without it the client is read-only
	ChainID       int64
	PoolContract  string
	TokenDecimals int
	EventLookback uint64
}

// Option configures the client.
type Option func(*EvmClient)

// WithClient sets a custom Ethereum client (useful for testing).
func WithClient(client EthClient) Option {
	return func(c *EvmClient) {
		c.client = client
	}
}

// EvmClient implements Client against the lending pool contract.
type EvmClient struct {
	client     EthClient
	privateKey *ecdsa.PrivateKey // nil in read-only mode
	address    common.Address
	chainID    *big.Int
	pool       common.Address
	abi        abi.ABI
	decimals   int32
	lookback   uint64
}

// Compile-time interface check
var _ Client = (*EvmClient)(nil)

// NewEvmClient creates a lending pool client. A missing private key is not an
// error; writes then return ErrReadOnly.
func NewEvmClient(cfg Config, opts ...Option) (*EvmClient, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	parsedABI, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}

	decimals := cfg.TokenDecimals
	if decimals <= 0 {
		decimals = DefaultTokenDecimals
	}
	lookback := cfg.EventLookback
	if lookback == 0 {
		lookback = DefaultEventLookback
	}

	c := &EvmClient{
		chainID:  big.NewInt(cfg.ChainID),
		pool:     common.HexToAddress(cfg.PoolContract),
		abi:      parsedABI,
		decimals: int32(decimals),
		lookback: lookback,
	}

	if cfg.PrivateKey != "" {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("ledger: invalid private key: %w", err)
		}
		publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("ledger: invalid private key: failed to derive public key")
		}
		c.privateKey = privateKey
		c.address = crypto.PubkeyToAddress(*publicKey)
	}

	// Apply options
	for _, opt := range opts {
		opt(c)
	}

	// Connect to RPC if no client provided
	if c.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		c.client = client
	}

	return c, nil
}

func validateConfig(cfg Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("ledger: chain ID required")
	}
	if !common.IsHexAddress(cfg.PoolContract) {
		return fmt.Errorf("%w: pool contract %q", ErrInvalidAddress, cfg.PoolContract)
	}
	if key := strings.TrimPrefix(cfg.PrivateKey, "0x"); key != "" && len(key) != 64 {
		return fmt.Errorf("ledger: private key must be 64 hex characters")
	}
	return nil
}

// GetPosition reads the account's pool position. Identity verification is a
// separate call; the returned snapshot leaves IdentityVerified false.
func (c *EvmClient) GetPosition(ctx context.Context, account string) (Position, error) {
	if !common.IsHexAddress(account) {
		return Position{}, fmt.Errorf("%w: %q", ErrInvalidAddress, account)
	}
	addr := common.HexToAddress(account)

	data, err := c.abi.Pack("getPosition", addr)
	if err != nil {
		return Position{}, &CallError{Op: "getPosition pack", Err: err}
	}
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.pool, Data: data}, nil)
	if err != nil {
		return Position{}, &CallError{Op: "getPosition", Err: err}
	}

	out, err := c.abi.Unpack("getPosition", result)
	if err != nil {
		return Position{}, &CallError{Op: "getPosition unpack", Err: err}
	}
	if len(out) != 5 {
		return Position{}, &CallError{Op: "getPosition unpack", Err: fmt.Errorf("expected 5 outputs, got %d", len(out))}
	}

	deposits, ok1 := out[0].(*big.Int)
	borrows, ok2 := out[1].(*big.Int)
	collateral, ok3 := out[2].(*big.Int)
	score, ok4 := out[3].(uint16)
	updatedAt, ok5 := out[4].(uint64)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return Position{}, &CallError{Op: "getPosition unpack", Err: fmt.Errorf("unexpected output types")}
	}

	return Position{
		Account:    strings.ToLower(addr.Hex()),
		Deposits:   decimal.NewFromBigInt(deposits, -c.decimals),
		Borrows:    decimal.NewFromBigInt(borrows, -c.decimals),
		Collateral: decimal.NewFromBigInt(collateral, -c.decimals),
		Score:      int(score),
		UpdatedAt:  time.Unix(int64(updatedAt), 0).UTC(), // #nosec G115 -- contract timestamps fit in int64
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// IsVerified reports whether the account passed the pool's identity check.
func (c *EvmClient) IsVerified(ctx context.Context, account string) (bool, error) {
	if !common.IsHexAddress(account) {
		return false, fmt.Errorf("%w: %q", ErrInvalidAddress, account)
	}

	data, err := c.abi.Pack("isVerified", common.HexToAddress(account))
	if err != nil {
		return false, &CallError{Op: "isVerified pack", Err: err}
	}
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.pool, Data: data}, nil)
	if err != nil {
		return false, &CallError{Op: "isVerified", Err: err}
	}

	out, err := c.abi.Unpack("isVerified", result)
	if err != nil {
		return false, &CallError{Op: "isVerified unpack", Err: err}
	}
	verified, ok := out[0].(bool)
	if !ok {
		return false, &CallError{Op: "isVerified unpack", Err: fmt.Errorf("unexpected output type")}
	}
	return verified, nil
}

// SubmitScore records a risk score on the pool contract.
func (c *EvmClient) SubmitScore(ctx context.Context, account string, score int) (string, error) {
	return c.submit(ctx, "updateRiskScore", account, score)
}

// SubmitAlert raises a risk alert on the pool contract.
func (c *EvmClient) SubmitAlert(ctx context.Context, account string, score int) (string, error) {
	return c.submit(ctx, "raiseRiskAlert", account, score)
}

func (c *EvmClient) submit(ctx context.Context, method, account string, score int) (string, error) {
	if c.privateKey == nil {
		return "", ErrReadOnly
	}
	if !common.IsHexAddress(account) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, account)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	data, err := c.abi.Pack(method, common.HexToAddress(account), uint16(score)) // #nosec G115 -- score clamped to [0,100]
	if err != nil {
		return "", &CallError{Op: method + " pack", Err: err}
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", &CallError{Op: "nonce", Err: err}
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", &CallError{Op: "gas_price", Err: err}
	}
	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.address,
		To:    &c.pool,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		// Use default if estimation fails
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, c.pool, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return "", &CallError{Op: "sign", Err: err}
	}
	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", &CallError{Op: "send", TxHash: signedTx.Hash().Hex(), Err: err}
	}

	return signedTx.Hash().Hex(), nil
}

// BorrowerCandidates returns the unique addresses that emitted a Borrowed
// event within the lookback window. Callers filter the list down to accounts
// with a live borrow balance.
func (c *EvmClient) BorrowerCandidates(ctx context.Context) ([]string, error) {
	head, err := c.client.BlockNumber(ctx)
	if err != nil {
		return nil, &CallError{Op: "block_number", Err: err}
	}
	from := uint64(0)
	if head > c.lookback {
		from = head - c.lookback
	}

	logs, err := c.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		Addresses: []common.Address{c.pool},
		Topics:    [][]common.Hash{{c.abi.Events["Borrowed"].ID}},
	})
	if err != nil {
		return nil, &CallError{Op: "filter_logs", Err: err}
	}

	seen := make(map[common.Address]struct{}, len(logs))
	var candidates []string
	for _, lg := range logs {
		if len(lg.Topics) < 2 {
			continue
		}
		addr := common.HexToAddress(lg.Topics[1].Hex())
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		candidates = append(candidates, strings.ToLower(addr.Hex()))
	}
	return candidates, nil
}

// Close closes the client connection.
func (c *EvmClient) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
