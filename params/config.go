package params

import (
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Exchange holds engine-level parameters.
type Exchange struct {
	// QuoteTicker is the instrument all prices are denominated in.
	// Every limit price is quote units per one base unit.
	QuoteTicker string

	// Admin is the only address allowed to register instruments.
	Admin common.Address
}

type Node struct {
	ListenAddr string
	DataDir    string
	LogFile    string

	// DevSeed registers DAI/DOT/SOL against the in-memory bank and funds
	// two test traders. Devnet only.
	DevSeed bool
}

type Config struct {
	Exchange Exchange
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			QuoteTicker: "DAI",
		},
		Node: Node{
			ListenAddr: ":8080",
			DataDir:    "data",
			LogFile:    "data/dexd.log",
			DevSeed:    false,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("DEX_LISTEN"); v != "" {
		cfg.Node.ListenAddr = v
	}
	if v := os.Getenv("DEX_DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("DEX_LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("DEX_QUOTE_TICKER"); v != "" {
		cfg.Exchange.QuoteTicker = v
	}
	if v := os.Getenv("DEX_ADMIN"); v != "" && common.IsHexAddress(v) {
		cfg.Exchange.Admin = common.HexToAddress(v)
	}
	if v := os.Getenv("DEX_DEV_SEED"); v != "" {
		cfg.Node.DevSeed = v == "true"
	}

	return cfg
}
