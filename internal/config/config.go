package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	Backend BackendConfig
	Trace   TraceConfig
}

type AppConfig struct {
	Environment      string
	LogFilePath      string
	CredentialDBPath string
}

type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

type TraceConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Environment:      getEnv("GO_ENV", "development"),
			LogFilePath:      getEnv("LOG_FILE_PATH", "chat-client.log"),
			CredentialDBPath: getEnv("CREDENTIAL_DB_PATH", defaultCredentialPath()),
		},
		Backend: BackendConfig{
			BaseURL:        getEnv("API_BASE_URL", "http://localhost:8000"),
			RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Trace: TraceConfig{
			Enabled:  getEnv("OTEL_ENABLED", "false") == "true",
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

// defaultCredentialPath keeps the credential database under the user's
// home directory so a login survives restarts from any working directory.
func defaultCredentialPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "credentials.db"
	}
	return filepath.Join(home, ".bitcoin-gpt", "credentials.db")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
