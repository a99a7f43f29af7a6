package params

import (
	"os"

	"github.com/joho/godotenv"
)

type Server struct {
	Listen  string // HTTP listen address
	LogFile string
}

type Storage struct {
	// Backend selects where the book lives: "memory" (default), "redis",
	// or "pebble".
	Backend    string
	RedisAddr  string
	PebblePath string
}

type Config struct {
	Server  Server
	Storage Storage
}

func Default() Config {
	return Config{
		Server: Server{
			Listen:  ":8080",
			LogFile: "data/bookd.log",
		},
		Storage: Storage{
			Backend:    "memory",
			RedisAddr:  "127.0.0.1:6379",
			PebblePath: "data/book",
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
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv("BOOKD_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Server.LogFile = v
	}
	if v := os.Getenv("BOOKD_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv("PEBBLE_PATH"); v != "" {
		cfg.Storage.PebblePath = v
	}

	return cfg
}
