package recommend

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// contractABI describes the recommendation contract's read-only entry point.
const contractABI = `[{
	"type": "function",
	"name": "getRecommendations",
	"stateMutability": "view",
	"inputs": [
		{"name": "userActivityMatrix", "type": "int64[][]"},
		{"name": "userIndex", "type": "int64"},
		{"name": "k", "type": "int64"}
	],
	"outputs": [{"name": "", "type": "int64[][]"}]
}]`

const methodGetRecommendations = "getRecommendations"

// ContractCaller executes read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Ethereum calls a recommendation contract over JSON-RPC. Results depend on
// remote chain state, so it is not deterministic.
type Ethereum struct {
	client   ContractCaller
	contract common.Address
	abi      ethabi.ABI
	retry    RetryPolicy
	timeout  time.Duration
}

// EthereumOption configures an Ethereum recommender.
type EthereumOption func(*Ethereum)

// WithRetry sets the retry policy for transient RPC failures.
func WithRetry(p RetryPolicy) EthereumOption {
	return func(e *Ethereum) { e.retry = p }
}

// WithCallTimeout bounds each Recommend call including retries.
func WithCallTimeout(d time.Duration) EthereumOption {
	return func(e *Ethereum) { e.timeout = d }
}

// NewEthereum wraps an existing client.
func NewEthereum(client ContractCaller, contract string, opts ...EthereumOption) (*Ethereum, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}
	parsed, err := ethabi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parsing contract abi: %w", err)
	}
	e := &Ethereum{
		client:   client,
		contract: common.HexToAddress(contract),
		abi:      parsed,
		retry:    RetryPolicy{Attempts: 1},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DialEthereum connects to endpoint and targets contract.
func DialEthereum(ctx context.Context, endpoint, contract string, opts ...EthereumOption) (*Ethereum, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	e, err := NewEthereum(client, contract, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	return e, nil
}

// Close shuts the RPC connection down when the client owns one.
func (e *Ethereum) Close() error {
	if c, ok := e.client.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

// Deterministic is always false.
func (*Ethereum) Deterministic() bool { return false }

// Recommend implements Recommender.
func (e *Ethereum) Recommend(ctx context.Context, req Request) (Matrix, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	input, err := e.abi.Pack(methodGetRecommendations, [][]int64(req.Activity), req.UserIndex, req.K)
	if err != nil {
		return nil, fmt.Errorf("packing call: %w", err)
	}
	call := ethereum.CallMsg{To: &e.contract, Data: input}

	out, err := retry(ctx, e.retry, func(ctx context.Context) ([]byte, error) {
		return e.client.CallContract(ctx, call, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("calling %s on %s: %w", methodGetRecommendations, e.contract.Hex(), err)
	}

	values, err := e.abi.Unpack(methodGetRecommendations, out)
	if err != nil {
		return nil, fmt.Errorf("unpacking result: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("contract returned %d values, want 1", len(values))
	}
	rows, ok := values[0].([][]int64)
	if !ok {
		return nil, fmt.Errorf("contract returned %T, want [][]int64", values[0])
	}
	return Matrix(rows), nil
}
