// fluxinsight-cli is a command-line client for a running fluxinsightd.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cruxpool/flux-insight-api/internal/status"
	"github.com/cruxpool/flux-insight-api/internal/supply"
)

const defaultAPI = "http://127.0.0.1:3001/api"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	apiURL, args := parseGlobal(os.Args[1:])
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := &apiClient{base: strings.TrimRight(apiURL, "/"), http: &http.Client{Timeout: 15 * time.Second}}
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "sync":
		cmdSync(client)
	case "peers":
		cmdPeers(client)
	case "info":
		cmdInfo(client)
	case "supply":
		cmdSupply(client, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: fluxinsight-cli [global flags] <command> [args]

Global flags:
  --api <url>       API base URL (default: %s)

Commands:
  status            Show chain tip and sync state
  sync              Show sync progress
  peers             Show connected peers
  info              Show node info
  supply [height]   Show circulating supply; computed offline when a
                    height is given, fetched from the API otherwise
`, defaultAPI)
}

// parseGlobal strips leading global flags and returns the API base URL with
// the remaining arguments.
func parseGlobal(args []string) (string, []string) {
	apiURL := defaultAPI
	for len(args) > 0 {
		switch {
		case args[0] == "--api" && len(args) > 1:
			apiURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--api="):
			apiURL = strings.TrimPrefix(args[0], "--api=")
			args = args[1:]
		default:
			return apiURL, args
		}
	}
	return apiURL, args
}

// apiClient fetches JSON from the insight API.
type apiClient struct {
	base string
	http *http.Client
}

func (c *apiClient) get(path string, v interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, v)
}

// ── status ──────────────────────────────────────────────────────────────

func cmdStatus(c *apiClient) {
	var tip struct {
		LastBlockHash string `json:"lastblockhash"`
	}
	if err := c.get("/status?q=getLastBlockHash", &tip); err != nil {
		fatal("status: %v", err)
	}
	var sync status.Sync
	if err := c.get("/sync", &sync); err != nil {
		fatal("sync: %v", err)
	}

	fmt.Printf("Height:  %s\n", humanize.Comma(sync.Height))
	fmt.Printf("Tip:     %s\n", tip.LastBlockHash)
	fmt.Printf("Sync:    %s (%d%%)\n", sync.Status, sync.SyncPercentage)
}

// ── sync ────────────────────────────────────────────────────────────────

func cmdSync(c *apiClient) {
	var sync status.Sync
	if err := c.get("/sync", &sync); err != nil {
		fatal("sync: %v", err)
	}
	fmt.Printf("Status:    %s\n", sync.Status)
	fmt.Printf("Progress:  %d%%\n", sync.SyncPercentage)
	fmt.Printf("Height:    %s\n", humanize.Comma(sync.BlockChainHeight))
}

// ── peers ───────────────────────────────────────────────────────────────

func cmdPeers(c *apiClient) {
	var result struct {
		PeerInfo []status.Peer `json:"peerInfo"`
	}
	if err := c.get("/status?q=getPeerInfo", &result); err != nil {
		fatal("getPeerInfo: %v", err)
	}

	fmt.Printf("Peers:   %d\n", len(result.PeerInfo))
	for _, p := range result.PeerInfo {
		fmt.Printf("  %-40s %-24s proto %d, connected %s\n",
			p.Address, p.Version, p.Protocol, humanize.Time(time.Unix(p.Timestamp, 0)))
	}
}

// ── info ────────────────────────────────────────────────────────────────

func cmdInfo(c *apiClient) {
	var result struct {
		Info status.Info `json:"info"`
	}
	if err := c.get("/status?q=getInfo", &result); err != nil {
		fatal("getInfo: %v", err)
	}
	info := result.Info

	fmt.Printf("Network:      %s\n", info.Network)
	fmt.Printf("Version:      %d (protocol %d)\n", info.Version, info.ProtocolVersion)
	fmt.Printf("Blocks:       %s\n", humanize.Comma(info.Blocks))
	fmt.Printf("Connections:  %d\n", info.Connections)
	fmt.Printf("Difficulty:   %s\n", humanize.Commaf(info.Difficulty))
	fmt.Printf("Reward:       %s FLUX\n", strconv.FormatFloat(info.Reward, 'f', -1, 64))
	if info.Errors != "" {
		fmt.Printf("Errors:       %s\n", info.Errors)
	}
}

// ── supply ──────────────────────────────────────────────────────────────

func cmdSupply(c *apiClient, args []string) {
	if len(args) == 0 {
		var body status.Circulation
		if err := c.get("/circulation", &body); err != nil {
			fatal("circulation: %v", err)
		}
		fmt.Printf("Circulating:  %s FLUX\n", commaDecimal(body.CircSupplyDig))
		fmt.Printf("Rounded:      %s FLUX\n", humanize.Comma(body.CircSupplyInt))
		return
	}

	height, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fatal("invalid height %q", args[0])
	}
	calc, err := supply.NewCalculator(supply.MainnetSchedule())
	if err != nil {
		fatal("%v", err)
	}
	res, err := calc.Compute(height)
	if err != nil {
		fatal("%v", err)
	}

	fmt.Printf("Height:       %s\n", humanize.Comma(res.Height))
	fmt.Printf("Halvings:     %d\n", res.Halvings)
	fmt.Printf("Block reward: %s FLUX\n", calc.Subsidy(height).String())
	fmt.Printf("Circulating:  %s FLUX\n", commaDecimal(res.Formatted))
	fmt.Printf("Rounded:      %s FLUX\n", humanize.Comma(res.Rounded))
}

// commaDecimal groups the integer part of a fixed-point string, leaving the
// fraction untouched.
func commaDecimal(s string) string {
	intPart, frac, hasFrac := strings.Cut(s, ".")
	n, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return s
	}
	out := humanize.Comma(n)
	if hasFrac {
		out += "." + frac
	}
	return out
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
