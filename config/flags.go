package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ErrHelp is returned by Load when help or version output was requested.
var ErrHelp = errors.New("help requested")

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	Testnet bool
	DataDir string
	Config  string

	// HTTP
	HTTPAddr    string
	HTTPPort    int
	HTTPPrefix  string
	HTTPAllowed string
	HTTPCORS    string

	// Node
	NodeRPC      string
	NodeUser     string
	NodePassword string
	NodeTimeout  time.Duration
	NodePoll     time.Duration

	// Cache
	CacheTTL     time.Duration
	CachePersist bool

	// Metrics
	Metrics bool

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetCachePersist bool
	SetMetrics      bool
	SetLogJSON      bool
}

// ParseFlags parses command-line flags from args (without the program name).
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("fluxinsightd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.BoolVar(&f.Testnet, "testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// HTTP
	fs.StringVar(&f.HTTPAddr, "http-addr", "", "API listen address")
	fs.IntVar(&f.HTTPPort, "http-port", 0, "API listen port")
	fs.StringVar(&f.HTTPPrefix, "http-prefix", "", "API route prefix")
	fs.StringVar(&f.HTTPAllowed, "http-allowed", "", "Allowed client IPs/CIDRs (comma-separated)")
	fs.StringVar(&f.HTTPCORS, "http-cors", "", "Allowed CORS origins (comma-separated)")

	// Node
	fs.StringVar(&f.NodeRPC, "node-rpc", "", "fluxd RPC URL")
	fs.StringVar(&f.NodeUser, "node-user", "", "fluxd RPC user")
	fs.StringVar(&f.NodePassword, "node-password", "", "fluxd RPC password")
	fs.DurationVar(&f.NodeTimeout, "node-timeout", 0, "fluxd RPC timeout")
	fs.DurationVar(&f.NodePoll, "node-poll", 0, "Chain tip polling interval")

	// Cache
	fs.DurationVar(&f.CacheTTL, "cache-ttl", 0, "Supply snapshot lifetime")
	fs.BoolVar(&f.CachePersist, "cache-persist", true, "Persist the supply snapshot on disk")

	// Metrics
	fs.BoolVar(&f.Metrics, "metrics", true, "Serve Prometheus metrics on /metrics")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			f.Help = true
			return f, nil
		}
		return nil, err
	}

	if f.Testnet {
		f.Network = string(Testnet)
	}
	f.SetCachePersist = isFlagSet(fs, "cache-persist")
	f.SetMetrics = isFlagSet(fs, "metrics")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// A positional argument stops the parser; anything flag-like after it
	// was silently ignored.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) error {
	// Core
	if f.Network != "" {
		n, err := ParseNetwork(f.Network)
		if err != nil {
			return err
		}
		cfg.Network = n
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// HTTP
	if f.HTTPAddr != "" {
		cfg.HTTP.Addr = f.HTTPAddr
	}
	if f.HTTPPort != 0 {
		cfg.HTTP.Port = f.HTTPPort
	}
	if f.HTTPPrefix != "" {
		cfg.HTTP.Prefix = f.HTTPPrefix
	}
	if f.HTTPAllowed != "" {
		cfg.HTTP.AllowedIPs = parseStringList(f.HTTPAllowed)
	}
	if f.HTTPCORS != "" {
		cfg.HTTP.CORSOrigins = parseStringList(f.HTTPCORS)
	}

	// Node
	if f.NodeRPC != "" {
		cfg.Node.RPC = f.NodeRPC
	}
	if f.NodeUser != "" {
		cfg.Node.User = f.NodeUser
	}
	if f.NodePassword != "" {
		cfg.Node.Password = f.NodePassword
	}
	if f.NodeTimeout != 0 {
		cfg.Node.Timeout = f.NodeTimeout
	}
	if f.NodePoll != 0 {
		cfg.Node.Poll = f.NodePoll
	}

	// Cache
	if f.CacheTTL != 0 {
		cfg.Cache.TTL = f.CacheTTL
	}
	if f.SetCachePersist {
		cfg.Cache.Persist = f.CachePersist
	}

	// Metrics
	if f.SetMetrics {
		cfg.Metrics.Enabled = f.Metrics
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
	return nil
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the daemon help text to w.
func PrintUsage(w io.Writer) {
	usage := `Flux Insight API - explorer status and circulating supply for fluxd

Usage:
  fluxinsightd [options]
  fluxinsightd --help

Commands:
  --help, -h        Show this help message
  --version, -v     Show version information

Core Options:
  --network         Network type: mainnet (default) or testnet
  --testnet         Shorthand for --network=testnet
  --datadir         Data directory (default: ~/.fluxinsight)
  --config, -c      Config file path (default: <datadir>/fluxinsight.conf)

HTTP Options:
  --http-addr       API listen address (default: 127.0.0.1)
  --http-port       API port (mainnet: 3001, testnet: 3002)
  --http-prefix     Route prefix (default: api)
  --http-allowed    Allowed client IPs/CIDRs (comma-separated)
  --http-cors       Allowed CORS origins (comma-separated)

Node Options:
  --node-rpc        fluxd RPC URL (mainnet: http://127.0.0.1:16124)
  --node-user       fluxd RPC user
  --node-password   fluxd RPC password
  --node-timeout    RPC timeout (default: 10s)
  --node-poll       Chain tip polling interval (default: 5s)

Cache Options:
  --cache-ttl       Supply snapshot lifetime (default: 30s)
  --cache-persist   Persist the last snapshot on disk (default: true)

Metrics Options:
  --metrics         Serve Prometheus metrics on /metrics (default: true)

Logging Options:
  --log-level       Log level: debug, info, warn, error (default: info)
  --log-file        Log file path (default: stdout)
  --log-json        Output logs as JSON

Examples:
  # Serve mainnet from a local fluxd
  fluxinsightd --node-user=flux --node-password=secret

  # Expose the API publicly with CORS
  fluxinsightd --http-addr=0.0.0.0 --http-cors='*'
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
//
// ErrHelp is returned after printing help or version output.
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}

	// Handle help/version
	if flags.Help {
		PrintUsage(os.Stdout)
		return nil, flags, ErrHelp
	}
	if flags.Version {
		fmt.Println("fluxinsightd version " + Version)
		return nil, flags, ErrHelp
	}

	// Determine network first (needed for defaults)
	network := Mainnet
	if flags.Network != "" {
		n, err := ParseNetwork(flags.Network)
		if err != nil {
			return nil, nil, err
		}
		network = n
	}

	// Start with defaults
	cfg := Default(network)

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	// Determine config file path
	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	// Load config file
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	// Apply file config
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	if err := ApplyFlags(cfg, flags); err != nil {
		return nil, nil, fmt.Errorf("applying flags: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
