package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be in range [0, 65535]")
	}
	if strings.ContainsAny(strings.Trim(cfg.HTTP.Prefix, "/"), "/?# ") {
		return fmt.Errorf("http.prefix must be a single path segment")
	}

	for _, entry := range cfg.HTTP.AllowedIPs {
		if !validAllowedEntry(entry) {
			return fmt.Errorf("http.allowed: %q is not an IP address or CIDR", entry)
		}
	}

	u, err := url.Parse(cfg.Node.RPC)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("node.rpc must be an http(s) URL, got %q", cfg.Node.RPC)
	}
	if cfg.Node.Timeout <= 0 {
		return fmt.Errorf("node.timeout must be positive")
	}
	if cfg.Node.Poll <= 0 {
		return fmt.Errorf("node.poll must be positive")
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	return nil
}

func validAllowedEntry(entry string) bool {
	if _, _, err := net.ParseCIDR(entry); err == nil {
		return true
	}
	return net.ParseIP(entry) != nil
}
