package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mcuadros/go-defaults"
)

type Config struct {
	App         AppConfig
	Fingerprint Snapshot
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	NotifyLogFilePath  string
	CorsAllowedOrigins string
	ConfigFilePath     string
	// SampleSourceDir is the drop directory the software device backend
	// watches for scanned fingerprint images.
	SampleSourceDir string
	// DeviceLibraries lists native shared libraries whose presence is
	// checked during device initialization (comma-separated in env).
	DeviceLibraries []string
	// CallbackURL, when set, receives every progress event as an HTTP POST
	// in addition to websocket delivery.
	CallbackURL string
}

// Snapshot is the runtime-tunable fingerprint configuration. Orchestrated
// operations read one snapshot at call time and never observe later updates,
// so a reload can never desynchronize an in-flight session.
type Snapshot struct {
	MatchThreshold          int    `json:"threshold" default:"70"`
	TimeoutMs               int    `json:"timeout" default:"30000"`
	MaxRotation             int    `json:"maxRotation" default:"199"`
	MaxFramesPerTemplate    int    `json:"maxFramesInTemplate" default:"5"`
	MinQuality              int    `json:"minQuality" default:"50"`
	MaxTemplatesPerIdentify int    `json:"maxTemplatesPerIdentify" default:"500"`
	DeviceCheckRetries      int    `json:"deviceCheckRetries" default:"3"`
	DeviceCheckDelayMs      int    `json:"deviceCheckDelayMs" default:"1000"`
	TemplatePath            string `json:"templatePath" default:"./fingerprints"`
	CapturePath             string `json:"capturePath" default:"./fingerprints/captures"`
	OverwriteExisting       bool   `json:"overwriteExisting"`
	DetectFakeFinger        bool   `json:"detectFakeFinger"`
	FastMode                bool   `json:"fastMode"`
	ImageFormat             string `json:"imageFormat" default:"bmp"`
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	var snap Snapshot
	defaults.SetDefaults(&snap)
	snap.MatchThreshold = getEnvAsInt("FP_THRESHOLD", snap.MatchThreshold)
	snap.TimeoutMs = getEnvAsInt("FP_TIMEOUT_MS", snap.TimeoutMs)
	snap.MaxRotation = getEnvAsInt("FP_MAX_ROTATION", snap.MaxRotation)
	snap.TemplatePath = getEnv("FP_TEMPLATE_PATH", snap.TemplatePath)
	snap.CapturePath = getEnv("FP_CAPTURE_PATH", snap.CapturePath)

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "5000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "fingerprint-service.log"),
			NotifyLogFilePath:  getEnv("NOTIFY_LOG_FILE_PATH", "fingerprint-notify.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			ConfigFilePath:     getEnv("FP_CONFIG_FILE", "fingerprint-config.json"),
			SampleSourceDir:    getEnv("FP_SAMPLE_SOURCE_DIR", "./sensor-feed"),
			DeviceLibraries:    splitList(getEnv("FP_DEVICE_LIBRARIES", "")),
			CallbackURL:        getEnv("FP_CALLBACK_URL", ""),
		},
		Fingerprint: snap,
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
