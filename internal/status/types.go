package status

import "encoding/json"

// Info is the body of getInfo.
type Info struct {
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
	Network         string  `json:"network"`
	Reward          float64 `json:"reward"`
}

// MiningInfo is the body of getMiningInfo.
type MiningInfo struct {
	Difficulty    float64 `json:"difficulty"`
	NetworkHashPS float64 `json:"networkhashps"`
}

// Uptime is a connection age split into whole units.
type Uptime struct {
	Days    int64 `json:"Days"`
	Hours   int64 `json:"Hours"`
	Minutes int64 `json:"Minutes"`
	Seconds int64 `json:"Seconds"`
}

// Peer is one connected peer.
type Peer struct {
	Address   string `json:"address"`
	Protocol  int    `json:"protocol"`
	Version   string `json:"version"`
	Uptime    Uptime `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}

// Sync is the body of /sync.
type Sync struct {
	Status           string      `json:"status"`
	BlockChainHeight int64       `json:"blockChainHeight"`
	SyncPercentage   int64       `json:"syncPercentage"`
	Height           int64       `json:"height"`
	Error            interface{} `json:"error"`
	Type             string      `json:"type"`
}

// PeerStatus is the fixed body of /peer.
type PeerStatus struct {
	Connected bool        `json:"connected"`
	Host      string      `json:"host"`
	Port      interface{} `json:"port"`
}

// Version is the body of /version.
type Version struct {
	Version string `json:"version"`
}

// Circulation is the body of /circulation. Field names are relied on by
// existing consumers.
type Circulation struct {
	CirculationSupply json.Number `json:"circulationsupply"`
	CircSupplyInt     int64       `json:"circsupplyint"`
	CircSupplyDig     string      `json:"circsupplydig"`
}
