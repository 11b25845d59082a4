// Package status implements the insight status endpoints: node info,
// sync progress, peers and circulating supply.
package status

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/cruxpool/flux-insight-api/internal/cache"
	"github.com/cruxpool/flux-insight-api/internal/daemon"
	"github.com/cruxpool/flux-insight-api/internal/rpcclient"
	"github.com/cruxpool/flux-insight-api/internal/supply"
)

// Node is the subset of the node service the controller reads from.
type Node interface {
	Tip() daemon.Tip
	Info(ctx context.Context) (*rpcclient.InfoResult, error)
	MiningInfo(ctx context.Context) (*rpcclient.MiningInfoResult, error)
	PeerInfo(ctx context.Context) ([]rpcclient.PeerInfo, error)
	BestBlockHash(ctx context.Context) (string, error)
	FluxNodeList(ctx context.Context) (json.RawMessage, error)
	SyncPercentage(ctx context.Context) (float64, error)
	IsSynced(ctx context.Context) (bool, error)
}

// SupplyCache serves circulating-supply snapshots.
type SupplyCache interface {
	Fresh(ctx context.Context) (cache.Snapshot, error)
}

// Config holds controller dependencies.
type Config struct {
	Node       Node
	Supply     SupplyCache
	Calculator *supply.Calculator
	Testnet    bool
	Version    string
}

// Controller answers status queries.
type Controller struct {
	node    Node
	supply  SupplyCache
	calc    *supply.Calculator
	network string
	version string
	now     func() time.Time
}

// New creates a controller.
func New(cfg Config) *Controller {
	network := "livenet"
	if cfg.Testnet {
		network = "testnet"
	}
	return &Controller{
		node:    cfg.Node,
		supply:  cfg.Supply,
		calc:    cfg.Calculator,
		network: network,
		version: cfg.Version,
		now:     time.Now,
	}
}

// Show dispatches on the q query parameter. Unknown values fall back to
// getInfo.
func (c *Controller) Show(ctx context.Context, q string) (interface{}, error) {
	switch q {
	case "getDifficulty":
		info, err := c.node.Info(ctx)
		if err != nil {
			return nil, err
		}
		return struct {
			Difficulty float64 `json:"difficulty"`
		}{info.Difficulty}, nil

	case "getLastBlockHash":
		return c.LastBlockHash(), nil

	case "getBestBlockHash":
		hash, err := c.node.BestBlockHash(ctx)
		if err != nil {
			return nil, err
		}
		return struct {
			BestBlockHash string `json:"bestblockhash"`
		}{hash}, nil

	case "getMiningInfo":
		mi, err := c.node.MiningInfo(ctx)
		if err != nil {
			return nil, err
		}
		return struct {
			MiningInfo MiningInfo `json:"miningInfo"`
		}{MiningInfo{Difficulty: mi.Difficulty, NetworkHashPS: mi.NetworkHashPS}}, nil

	case "getPeerInfo":
		peers, err := c.Peers(ctx)
		if err != nil {
			return nil, err
		}
		return struct {
			PeerInfo []Peer `json:"peerInfo"`
		}{peers}, nil

	case "getZelNodes":
		list, err := c.node.FluxNodeList(ctx)
		if err != nil {
			return nil, err
		}
		return struct {
			ZelNodes json.RawMessage `json:"zelNodes"`
		}{nullIfEmpty(list)}, nil

	case "getFluxNodes":
		list, err := c.node.FluxNodeList(ctx)
		if err != nil {
			return nil, err
		}
		return struct {
			FluxNodes json.RawMessage `json:"fluxNodes"`
		}{nullIfEmpty(list)}, nil

	default:
		info, err := c.Info(ctx)
		if err != nil {
			return nil, err
		}
		return struct {
			Info *Info `json:"info"`
		}{info}, nil
	}
}

// Info returns the node summary.
func (c *Controller) Info(ctx context.Context) (*Info, error) {
	r, err := c.node.Info(ctx)
	if err != nil {
		return nil, err
	}
	reward, _ := c.calc.Subsidy(r.Blocks).Float64()
	return &Info{
		Version:         r.Version,
		ProtocolVersion: r.ProtocolVersion,
		WalletVersion:   r.WalletVersion,
		Blocks:          r.Blocks,
		TimeOffset:      r.TimeOffset,
		Connections:     r.Connections,
		Proxy:           r.Proxy,
		Difficulty:      r.Difficulty,
		Testnet:         r.Testnet,
		RelayFee:        r.RelayFee,
		Errors:          r.Errors,
		Network:         c.network,
		Reward:          reward,
	}, nil
}

// LastBlockHash reports the cached tip hash without contacting the node.
func (c *Controller) LastBlockHash() interface{} {
	hash := c.node.Tip().Hash
	return struct {
		SyncTipHash   string `json:"syncTipHash"`
		LastBlockHash string `json:"lastblockhash"`
	}{hash, hash}
}

// Peers returns the connected peers, oldest connection first.
func (c *Controller) Peers(ctx context.Context) ([]Peer, error) {
	in, err := c.node.PeerInfo(ctx)
	if err != nil {
		return nil, err
	}
	return formatPeers(in, c.now()), nil
}

// Sync reports node sync progress. Heights come from the cached tip.
func (c *Controller) Sync(ctx context.Context) (*Sync, error) {
	synced, err := c.node.IsSynced(ctx)
	if err != nil {
		return nil, err
	}
	pct, err := c.node.SyncPercentage(ctx)
	if err != nil {
		return nil, err
	}

	st := "syncing"
	if synced {
		st = "finished"
	}
	height := c.node.Tip().Height
	return &Sync{
		Status:           st,
		BlockChainHeight: height,
		SyncPercentage:   int64(math.Round(pct)),
		Height:           height,
		Error:            nil,
		Type:             "bitcore node",
	}, nil
}

// Peer returns the fixed peer status insight-ui expects.
func (c *Controller) Peer() PeerStatus {
	return PeerStatus{Connected: true, Host: "127.0.0.1", Port: nil}
}

// Version returns the build version.
func (c *Controller) Version() Version {
	return Version{Version: c.version}
}

// Circulation returns the circulating supply at the current height along
// with the snapshot it was taken from.
func (c *Controller) Circulation(ctx context.Context) (Circulation, cache.Snapshot, error) {
	s, err := c.supply.Fresh(ctx)
	if err != nil {
		return Circulation{}, cache.Snapshot{}, err
	}
	return NewCirculation(s), s, nil
}

// NewCirculation shapes a snapshot into the /circulation body.
func NewCirculation(s cache.Snapshot) Circulation {
	return Circulation{
		CirculationSupply: json.Number(s.Total.String()),
		CircSupplyInt:     s.Rounded,
		CircSupplyDig:     s.Formatted,
	}
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
