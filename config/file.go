package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		n, err := ParseNetwork(value)
		if err != nil {
			return err
		}
		cfg.Network = n
	case "datadir":
		cfg.DataDir = value

	// HTTP
	case "http.addr":
		cfg.HTTP.Addr = value
	case "http.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.HTTP.Port = port
	case "http.prefix":
		cfg.HTTP.Prefix = value
	case "http.allowed":
		cfg.HTTP.AllowedIPs = parseStringList(value)
	case "http.cors":
		cfg.HTTP.CORSOrigins = parseStringList(value)

	// Node
	case "node.rpc":
		cfg.Node.RPC = value
	case "node.user":
		cfg.Node.User = value
	case "node.password":
		cfg.Node.Password = value
	case "node.timeout":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		cfg.Node.Timeout = d
	case "node.poll":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		cfg.Node.Poll = d

	// Cache
	case "cache.ttl":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		cfg.Cache.TTL = d
	case "cache.persist":
		cfg.Cache.Persist = parseBool(value)

	// Metrics
	case "metrics.enabled", "metrics":
		cfg.Metrics.Enabled = parseBool(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// ParseNetwork maps a network name to its NetworkType. "livenet" is accepted
// as an alias for mainnet.
func ParseNetwork(s string) (NetworkType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet", "livenet", "main":
		return Mainnet, nil
	case "testnet", "test":
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown network %q", s)
	}
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseDuration accepts Go durations ("30s") or a bare number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	def := Default(network)
	content := `# Flux Insight API Configuration

# Network: mainnet (livenet) or testnet
network = ` + string(network) + `

# Data directory (default: ~/.fluxinsight)
# datadir = ~/.fluxinsight

# ============================================================================
# HTTP API
# ============================================================================

http.addr = ` + def.HTTP.Addr + `
http.port = ` + strconv.Itoa(def.HTTP.Port) + `
http.prefix = ` + def.HTTP.Prefix + `
# Allowed client IPs or CIDRs (comma-separated, empty = all)
# http.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# http.cors = *

# ============================================================================
# fluxd node
# ============================================================================

node.rpc = ` + def.Node.RPC + `
# node.user =
# node.password =
node.timeout = ` + def.Node.Timeout.String() + `
node.poll = ` + def.Node.Poll.String() + `

# ============================================================================
# Supply cache
# ============================================================================

cache.ttl = ` + def.Cache.TTL.String() + `
cache.persist = true

# ============================================================================
# Metrics
# ============================================================================

metrics.enabled = true

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0600)
}
