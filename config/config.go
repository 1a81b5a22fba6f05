package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/drummonds/docpreview/engine/preview"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP     string
	ListenAddrPort   string
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string `json:"-"`
	DatabaseDbname   string
	DatabaseSslmode  string
	DatabaseDebug    bool

	// Rendering
	PreviewEngine      string
	PreviewScale       float64
	PreviewJPEGQuality int
	PreviewMaxRetries  int
	PreviewRetryDelay  time.Duration
	PreviewPixelRatio  float64
	PreviewMaxWidth    int
	PreviewTimeout     time.Duration
	PreviewMaxUploadMB int
	PreviewConcurrency int

	// Housekeeping
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	JobRetention         time.Duration
	FrontEndConfig
}

// FrontEndConfig stores all of the frontend settings
type FrontEndConfig struct {
	ServerAPIURL string
}

// PreviewConfig returns the renderer configuration injected into preview.NewRenderer
func (c ServerConfig) PreviewConfig() preview.Config {
	return preview.Config{
		Scale:       c.PreviewScale,
		JPEGQuality: c.PreviewJPEGQuality,
		MaxRetries:  c.PreviewMaxRetries,
		RetryDelay:  c.PreviewRetryDelay,
		PixelRatio:  c.PreviewPixelRatio,
		MaxWidth:    c.PreviewMaxWidth,
		Timeout:     c.PreviewTimeout,
	}
}

// MaxUploadBytes is the upload limit in bytes
func (c ServerConfig) MaxUploadBytes() int64 {
	return int64(c.PreviewMaxUploadMB) << 20
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil || floatVal <= 0 {
		return defaultValue
	}
	return floatVal
}

// getEnvDuration gets a duration environment variable with a default value.
// Bare integers are read as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration
	serverConfigLive.DatabaseType = strings.ToLower(getEnv("DATABASE_TYPE", "sqlite"))
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "docpreview")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "docpreview")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "")
	serverConfigLive.DatabaseDebug = getEnvBool("DATABASE_DEBUG", false)

	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)

	// Rendering configuration
	serverConfigLive.PreviewEngine = strings.ToLower(getEnv("PREVIEW_ENGINE", "pdfium"))
	serverConfigLive.PreviewScale = getEnvFloat("PREVIEW_SCALE", preview.DefaultScale)
	serverConfigLive.PreviewJPEGQuality = getEnvInt("PREVIEW_JPEG_QUALITY", preview.DefaultJPEGQuality)
	serverConfigLive.PreviewMaxRetries = getEnvInt("PREVIEW_MAX_RETRIES", preview.DefaultMaxRetries)
	serverConfigLive.PreviewRetryDelay = getEnvDuration("PREVIEW_RETRY_DELAY", preview.DefaultRetryDelay)
	serverConfigLive.PreviewPixelRatio = getEnvFloat("PREVIEW_PIXEL_RATIO", preview.DefaultPixelRatio)
	serverConfigLive.PreviewMaxWidth = getEnvInt("PREVIEW_MAX_WIDTH", 0)
	serverConfigLive.PreviewTimeout = getEnvDuration("PREVIEW_TIMEOUT", 30*time.Second)
	serverConfigLive.PreviewMaxUploadMB = getEnvInt("PREVIEW_MAX_UPLOAD_MB", 32)
	serverConfigLive.PreviewConcurrency = getEnvInt("PREVIEW_CONCURRENCY", 2)
	if serverConfigLive.PreviewConcurrency < 1 {
		serverConfigLive.PreviewConcurrency = 1
	}

	logger.Info("Preview configuration loaded",
		"engine", serverConfigLive.PreviewEngine,
		"scale", serverConfigLive.PreviewScale,
		"pixelRatio", serverConfigLive.PreviewPixelRatio,
		"concurrency", serverConfigLive.PreviewConcurrency,
		"timeout", serverConfigLive.PreviewTimeout)

	// Session housekeeping
	serverConfigLive.SessionTTL = getEnvDuration("SESSION_TTL", 30*time.Minute)
	serverConfigLive.SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute)
	serverConfigLive.JobRetention = getEnvDuration("JOB_RETENTION", 24*time.Hour)

	fmt.Println("\n========================================")
	fmt.Println("   docpreview - PDF Page Preview Server")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	if getEnv("LOG_OUTPUT", "stdout") == "file" {
		fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "docpreview.log"))
	}
	fmt.Println("Initializing...")

	// Frontend configuration
	serverConfigLive.FrontEndConfig = FrontEndConfig{
		ServerAPIURL: getEnv("SERVER_API_URL", ""),
	}
	if serverConfigLive.ServerAPIURL == "" {
		logger.Info("Using relative URLs for API calls (frontend will use same host it was served from)")
	}

	logger.Info("About to setup database", "type", serverConfigLive.DatabaseType)

	return serverConfigLive, logger
}

// SetupFrontend loads configuration for frontend-only server
func SetupFrontend() (FrontEndConfig, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")
	_ = godotenv.Load("frontend.env")

	logger := setupLogging()
	Logger = logger

	frontendConfig := FrontEndConfig{
		ServerAPIURL: getEnv("SERVER_API_URL", "http://localhost:8000"),
	}

	logger.Info("Frontend configuration loaded", "apiURL", frontendConfig.ServerAPIURL)

	return frontendConfig, logger
}

// parseLevel maps a LOG_LEVEL value onto a slog level, info when unknown
func parseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	handlerOptions := &slog.HandlerOptions{Level: parseLevel(getEnv("LOG_LEVEL", "info"))}

	logOutput := getEnv("LOG_OUTPUT", "stdout")
	var logWriter io.Writer

	if logOutput == "file" {
		logWriter = openLogFile(getEnv("LOG_FILE", "docpreview.log"))
	} else {
		logWriter = os.Stdout
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// openLogFile opens path for appending, falling back to stdout
func openLogFile(path string) io.Writer {
	logPath, err := filepath.Abs(filepath.ToSlash(path))
	if err != nil {
		fmt.Printf("Error creating log file path: %v\n", err)
		return os.Stdout
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		fmt.Printf("Failed to open log file: %v\n", err)
		return os.Stdout
	}
	fmt.Println("Logging to file: ", logPath)
	return logFile
}
