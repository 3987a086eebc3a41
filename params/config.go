package params

import (
	"math/big"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Escrow struct {
	// MinLockTime is the shortest accepted trade duration, in seconds.
	MinLockTime int64
	// FlatFee is the per-trade creation fee in the native coin's smallest unit.
	FlatFee *big.Int
	// Admin controls fee changes and fee withdrawal.
	Admin common.Address
	// SystemOwner is the reserved identity whose trades never expire.
	SystemOwner common.Address
}

type API struct {
	Listen  string
	LogFile string
}

type Config struct {
	Escrow Escrow
	API    API
	DBPath string
}

func Default() Config {
	return Config{
		Escrow: Escrow{
			MinLockTime: 10,
			FlatFee:     big.NewInt(1_000_000), // 1 mwei
			Admin:       common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
			SystemOwner: common.HexToAddress("0x00000000000000000000000000000000000005e7"),
		},
		API: API{
			Listen:  ":8080",
			LogFile: "logs/escrowd.log",
		},
		DBPath: "data/escrowd",
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

	if v := os.Getenv("ESCROW_MIN_LOCK_TIME"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Escrow.MinLockTime = sec
		}
	}
	if v := os.Getenv("ESCROW_FLAT_FEE"); v != "" {
		if fee, ok := new(big.Int).SetString(v, 10); ok && fee.Sign() >= 0 {
			cfg.Escrow.FlatFee = fee
		}
	}
	if v := os.Getenv("ESCROW_ADMIN"); v != "" && common.IsHexAddress(v) {
		cfg.Escrow.Admin = common.HexToAddress(v)
	}
	if v := os.Getenv("ESCROW_SYSTEM_OWNER"); v != "" && common.IsHexAddress(v) {
		cfg.Escrow.SystemOwner = common.HexToAddress(v)
	}
	if v := os.Getenv("API_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.API.LogFile = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	return cfg
}
