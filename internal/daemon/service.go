// Package daemon tracks the state of the backing fluxd node.
package daemon

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	klog "github.com/cruxpool/flux-insight-api/internal/log"
	"github.com/cruxpool/flux-insight-api/internal/metrics"
	"github.com/cruxpool/flux-insight-api/internal/rpcclient"
)

// DefaultPollInterval is used when Config.PollInterval is zero.
const DefaultPollInterval = 5 * time.Second

// Tip is the last chain tip observed from the node.
type Tip struct {
	Height    int64
	Hash      string
	UpdatedAt time.Time
}

// Service wraps the node RPC client and keeps the chain tip current.
type Service struct {
	rpc  *rpcclient.Client
	poll time.Duration

	mu  sync.RWMutex
	tip Tip
}

// New creates a service polling the node every poll interval.
func New(rpc *rpcclient.Client, poll time.Duration) *Service {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Service{rpc: rpc, poll: poll}
}

// Run polls the node until ctx is done. Poll failures are logged and retried
// on the next tick.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		klog.Daemon.Warn().Err(err).Msg("Initial tip poll failed")
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				klog.Daemon.Warn().Err(err).Msg("Tip poll failed")
			}
		}
	}
}

// Refresh fetches the best block hash and height once.
func (s *Service) Refresh(ctx context.Context) error {
	hash, err := s.rpc.GetBestBlockHash(ctx)
	if err != nil {
		return err
	}
	height, err := s.rpc.GetBlockCount(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.tip
	s.tip = Tip{Height: height, Hash: hash, UpdatedAt: time.Now()}
	s.mu.Unlock()

	metrics.TipHeight.Set(float64(height))
	if prev.Hash != hash {
		klog.Daemon.Debug().
			Int64("height", height).
			Str("hash", hash).
			Msg("New chain tip")
	}
	return nil
}

// Tip returns the last observed tip without contacting the node. The zero
// Tip is returned before the first successful poll.
func (s *Service) Tip() Tip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tip
}

// BlockCount returns the node's current height.
func (s *Service) BlockCount(ctx context.Context) (int64, error) {
	return s.rpc.GetBlockCount(ctx)
}

// SyncPercentage returns the node's verification progress as a percentage.
func (s *Service) SyncPercentage(ctx context.Context) (float64, error) {
	info, err := s.rpc.GetBlockchainInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.VerificationProgress * 100, nil
}

// IsSynced reports whether the rounded sync percentage has reached 100.
func (s *Service) IsSynced(ctx context.Context) (bool, error) {
	pct, err := s.SyncPercentage(ctx)
	if err != nil {
		return false, err
	}
	return math.Round(pct) >= 100, nil
}

// Info returns getinfo.
func (s *Service) Info(ctx context.Context) (*rpcclient.InfoResult, error) {
	return s.rpc.GetInfo(ctx)
}

// MiningInfo returns getmininginfo.
func (s *Service) MiningInfo(ctx context.Context) (*rpcclient.MiningInfoResult, error) {
	return s.rpc.GetMiningInfo(ctx)
}

// PeerInfo returns getpeerinfo.
func (s *Service) PeerInfo(ctx context.Context) ([]rpcclient.PeerInfo, error) {
	return s.rpc.GetPeerInfo(ctx)
}

// BestBlockHash returns the node's best block hash.
func (s *Service) BestBlockHash(ctx context.Context) (string, error) {
	return s.rpc.GetBestBlockHash(ctx)
}

// FluxNodeList returns the deterministic node list undecoded.
func (s *Service) FluxNodeList(ctx context.Context) (json.RawMessage, error) {
	return s.rpc.ViewDeterministicZelnodeList(ctx)
}
