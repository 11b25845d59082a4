package rpcclient

import (
	"context"
	"encoding/json"
)

// InfoResult is returned by getinfo.
type InfoResult struct {
	Version         int     `json:"version"`
	ProtocolVersion int     `json:"protocolversion"`
	WalletVersion   int     `json:"walletversion"`
	Blocks          int64   `json:"blocks"`
	TimeOffset      int64   `json:"timeoffset"`
	Connections     int     `json:"connections"`
	Proxy           string  `json:"proxy"`
	Difficulty      float64 `json:"difficulty"`
	Testnet         bool    `json:"testnet"`
	RelayFee        float64 `json:"relayfee"`
	Errors          string  `json:"errors"`
}

// MiningInfoResult is returned by getmininginfo.
type MiningInfoResult struct {
	Blocks        int64   `json:"blocks"`
	Difficulty    float64 `json:"difficulty"`
	NetworkHashPS float64 `json:"networkhashps"`
	PooledTx      int     `json:"pooledtx"`
	Chain         string  `json:"chain"`
}

// PeerInfo is one entry of getpeerinfo.
type PeerInfo struct {
	ID       int64  `json:"id"`
	Addr     string `json:"addr"`
	Version  int    `json:"version"`
	SubVer   string `json:"subver"`
	ConnTime int64  `json:"conntime"`
	Inbound  bool   `json:"inbound"`
}

// BlockchainInfoResult is returned by getblockchaininfo.
type BlockchainInfoResult struct {
	Chain                string  `json:"chain"`
	Blocks               int64   `json:"blocks"`
	Headers              int64   `json:"headers"`
	BestBlockHash        string  `json:"bestblockhash"`
	Difficulty           float64 `json:"difficulty"`
	VerificationProgress float64 `json:"verificationprogress"`
}

// GetInfo calls getinfo.
func (c *Client) GetInfo(ctx context.Context) (*InfoResult, error) {
	var r InfoResult
	if err := c.Call(ctx, "getinfo", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetMiningInfo calls getmininginfo.
func (c *Client) GetMiningInfo(ctx context.Context) (*MiningInfoResult, error) {
	var r MiningInfoResult
	if err := c.Call(ctx, "getmininginfo", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetPeerInfo calls getpeerinfo.
func (c *Client) GetPeerInfo(ctx context.Context) ([]PeerInfo, error) {
	var r []PeerInfo
	if err := c.Call(ctx, "getpeerinfo", nil, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetBestBlockHash calls getbestblockhash.
func (c *Client) GetBestBlockHash(ctx context.Context) (string, error) {
	var hash string
	if err := c.Call(ctx, "getbestblockhash", nil, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlockCount calls getblockcount.
func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	var n int64
	if err := c.Call(ctx, "getblockcount", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetBlockchainInfo calls getblockchaininfo.
func (c *Client) GetBlockchainInfo(ctx context.Context) (*BlockchainInfoResult, error) {
	var r BlockchainInfoResult
	if err := c.Call(ctx, "getblockchaininfo", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ViewDeterministicZelnodeList calls viewdeterministiczelnodelist. The node
// list is returned undecoded.
func (c *Client) ViewDeterministicZelnodeList(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, "viewdeterministiczelnodelist", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
