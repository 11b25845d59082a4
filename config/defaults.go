package config

import "time"

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		HTTP: HTTPConfig{
			Addr:       "127.0.0.1",
			Port:       3001,
			Prefix:     "api",
			AllowedIPs: nil,
		},
		Node: NodeConfig{
			RPC:     "http://127.0.0.1:16124",
			Timeout: 10 * time.Second,
			Poll:    5 * time.Second,
		},
		Cache: CacheConfig{
			TTL:     30 * time.Second,
			Persist: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.HTTP.Port = 3002
	cfg.Node.RPC = "http://127.0.0.1:26124"
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
