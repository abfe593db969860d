package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Engine struct {
	// MaxSlippageBps bounds how far the tick price may deviate from an
	// order's trigger before the pre-settlement pass zeroes its fill.
	MaxSlippageBps uint64
	// FillHistoryCap limits the per-order fill history. Oldest records are
	// kept; fills past the cap still update aggregates but are not appended.
	FillHistoryCap int
	// EngineKeyHex is the secp256k1 private key identifying this engine to
	// the confidential-compute runtime. Generated fresh when empty (devnet).
	EngineKeyHex string
	// SettlementAddr is the venue settlement account granted visibility of
	// revealed fill sizes and execution prices.
	SettlementAddr string
}

type Runtime struct {
	// SealKeyHex is the 32-byte chacha20poly1305 key the mock coprocessor
	// uses to seal plaintexts at rest. Generated fresh when empty (devnet).
	SealKeyHex string
	// OracleSeed seeds the BLS key of the reveal-attestation oracle.
	OracleSeed string
}

type Node struct {
	APIAddr string
	DBPath  string
	LogFile string
	// AdminToken authorizes force-cancel requests. Disabled when empty.
	AdminToken string
}

type Config struct {
	Engine  Engine
	Runtime Runtime
	Node    Node
}

func Default() Config {
	return Config{
		Engine: Engine{
			MaxSlippageBps: 200, // 2%
			FillHistoryCap: 256,
		},
		Runtime: Runtime{
			OracleSeed: "ciphermatch-devnet-oracle",
		},
		Node: Node{
			APIAddr: ":8547",
			DBPath:  "data/ciphermatch.db",
			LogFile: "data/engine.log",
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

	if v := os.Getenv("MAX_SLIPPAGE_BPS"); v != "" {
		if bps, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Engine.MaxSlippageBps = bps
		}
	}
	if v := os.Getenv("FILL_HISTORY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.FillHistoryCap = n
		}
	}
	if v := os.Getenv("ENGINE_KEY"); v != "" {
		cfg.Engine.EngineKeyHex = v
	}
	if v := os.Getenv("SETTLEMENT_ADDR"); v != "" {
		cfg.Engine.SettlementAddr = v
	}
	if v := os.Getenv("SEAL_KEY"); v != "" {
		cfg.Runtime.SealKeyHex = v
	}
	if v := os.Getenv("ORACLE_SEED"); v != "" {
		cfg.Runtime.OracleSeed = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Node.AdminToken = v
	}

	return cfg
}
