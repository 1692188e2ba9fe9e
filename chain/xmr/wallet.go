// Package xmr implements spec.md §6's Monero wallet adapter: the
// operations the swap state machine needs to fund the joint subaddress
// and later sweep it, independent of the key derivation in
// crypto/monero.
package xmr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/xmrswap/swapd/common"
	"github.com/xmrswap/swapd/crypto/monero"
)

// Wallet is the subset of monero-wallet-rpc spec.md §6 requires of
// Alice's Monero side: fund the joint address once Bob reveals his
// half of the spend key, or sweep it to Alice's own wallet once she
// recovers Bob's scalar. Grounded on noot-atomic-swap/monero/client.go's
// Client interface, trimmed to the two swap-relevant operations and
// the height check the observer needs.
type Wallet interface {
	// Transfer sends amount to addr from the primary account, returning
	// once the wallet-rpc has broadcast the transaction (not once it
	// confirms — spec.md §9 records that Alice does not wait for
	// Monero finality before proceeding). fee is the network fee
	// wallet-rpc deducted, carried alongside the lock proof for
	// operator accounting.
	Transfer(ctx context.Context, addr monero.Address, amount common.MoneroAmount) (txHash string, fee common.MoneroAmount, err error)

	// Sweep sends the entire balance of the account controlled by kp to
	// addr. Used both for Alice's redeem path (sweeping the joint
	// address once she holds both spend-key halves) and for tests.
	Sweep(ctx context.Context, kp *monero.PrivateKeyPair, addr monero.Address, env common.Environment) (txHash string, err error)

	// Height returns the wallet's view of the current chain height.
	Height(ctx context.Context) (uint64, error)
}

// rpcClient is a minimal monero-wallet-rpc JSON-RPC client. Grounded on
// noot-atomic-swap/monero/client.go's plain POST-JSON style (no
// generated client, no reflection-based RPC framework).
type rpcClient struct {
	sync.Mutex
	endpoint   string
	httpClient *http.Client
}

// NewRPCClient returns a Wallet backed by a running monero-wallet-rpc
// instance at endpoint (e.g. "http://127.0.0.1:18084/json_rpc").
func NewRPCClient(endpoint string) Wallet {
	return &rpcClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("monero-wallet-rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *rpcClient) call(ctx context.Context, method string, params, result interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("monero: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("monero: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return common.Errorf(common.ChainIo, "", "monero-wallet-rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return common.Errorf(common.ChainIo, "", "monero-wallet-rpc %s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return common.NewSwapError(common.ChainIo, "", rpcResp.Error)
	}

	if result == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}

type transferParams struct {
	Destinations []transferDestination `json:"destinations"`
	AccountIndex uint                  `json:"account_index"`
	Priority     uint                  `json:"priority"`
}

type transferDestination struct {
	Amount  uint64 `json:"amount"`
	Address string `json:"address"`
}

type transferResult struct {
	TxHash string `json:"tx_hash"`
	Fee    uint64 `json:"fee"`
}

func (c *rpcClient) Transfer(ctx context.Context, addr monero.Address, amount common.MoneroAmount) (string, common.MoneroAmount, error) {
	c.Lock()
	defer c.Unlock()

	var result transferResult
	err := c.call(ctx, "transfer", transferParams{
		Destinations: []transferDestination{{
			Amount:  uint64(amount),
			Address: string(addr),
		}},
		AccountIndex: 0,
		Priority:     0,
	}, &result)
	if err != nil {
		return "", 0, err
	}
	return result.TxHash, common.MoneroAmount(result.Fee), nil
}

type generateFromKeysParams struct {
	Filename string `json:"filename"`
	Address  string `json:"address"`
	SpendKey string `json:"spendkey"`
	ViewKey  string `json:"viewkey"`
	Password string `json:"password"`
	Restore  uint64 `json:"restore_height"`
}

type sweepAllParams struct {
	Address      string `json:"address"`
	AccountIndex uint   `json:"account_index"`
}

type sweepAllResult struct {
	TxHashList []string `json:"tx_hash_list"`
}

// Sweep opens a temporary wallet generated from kp's keys and sweeps
// its full balance to addr. This is the mechanism by which Alice
// claims the joint Monero output once she has summed her own spend-key
// half with Bob's recovered half (spec.md §4.4 step 6).
func (c *rpcClient) Sweep(ctx context.Context, kp *monero.PrivateKeyPair, addr monero.Address, env common.Environment) (string, error) {
	c.Lock()
	defer c.Unlock()

	kpAddr, err := kp.Address(env)
	if err != nil {
		return "", fmt.Errorf("monero: derive joint address: %w", err)
	}

	spendBytes := kp.SpendKey().Bytes()
	viewBytes := kp.ViewKey().Bytes()

	filename := fmt.Sprintf("swap-sweep-%s", addr)
	if err := c.call(ctx, "generate_from_keys", generateFromKeysParams{
		Filename: filename,
		Address:  string(kpAddr),
		SpendKey: fmt.Sprintf("%x", spendBytes),
		ViewKey:  fmt.Sprintf("%x", viewBytes),
		Password: "",
		Restore:  0,
	}, nil); err != nil {
		return "", err
	}

	if err := c.call(ctx, "open_wallet", map[string]string{
		"filename": filename,
		"password": "",
	}, nil); err != nil {
		return "", err
	}
	defer c.call(ctx, "close_wallet", struct{}{}, nil) //nolint:errcheck

	if err := c.call(ctx, "refresh", struct{}{}, nil); err != nil {
		return "", err
	}

	var result sweepAllResult
	if err := c.call(ctx, "sweep_all", sweepAllParams{
		Address:      string(addr),
		AccountIndex: 0,
	}, &result); err != nil {
		return "", err
	}
	if len(result.TxHashList) == 0 {
		return "", fmt.Errorf("monero: sweep_all returned no transactions")
	}
	return result.TxHashList[0], nil
}

type heightResult struct {
	Height uint64 `json:"height"`
}

func (c *rpcClient) Height(ctx context.Context) (uint64, error) {
	var result heightResult
	if err := c.call(ctx, "get_height", nil, &result); err != nil {
		return 0, err
	}
	return result.Height, nil
}
