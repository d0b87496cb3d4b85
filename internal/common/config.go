package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	OCR     OCRConfig
	Convert ConvertConfig
	Log     LogConfig
}

// ServerConfig holds HTTP and gRPC listener configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string // empty disables the gRPC health listener
	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
}

// StorageConfig holds filesystem locations
type StorageConfig struct {
	StagingDir string
	OutputDir  string
	SamplePDF  string
}

// OCRConfig holds OCR backend configuration
type OCRConfig struct {
	Engine              string
	Language            string
	DPI                 int
	PSM                 int
	OEM                 int
	AssumeStraightPages bool
	TessdataDir         string
	PdftoppmBin         string
	TesseractBin        string
}

// ConvertConfig holds conversion workflow limits
type ConvertConfig struct {
	MaxPages      int
	Timeout       time.Duration
	MaxConcurrent int
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       ":7860",
			GRPCAddr:       ":7861",
			MaxUploadBytes: 10 << 20,
			RateLimitRPS:   1,
			RateLimitBurst: 3,
		},
		Storage: StorageConfig{
			StagingDir: "temp",
			OutputDir:  ".",
			SamplePDF:  "try_example_file.pdf",
		},
		OCR: OCRConfig{
			Engine:              "tesseract",
			Language:            "en",
			DPI:                 300,
			AssumeStraightPages: true,
		},
		Convert: ConvertConfig{
			MaxPages:      20,
			MaxConcurrent: 2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file named by
// PDF2TEXT_CONFIG, then environment variables (a .env file in the working
// directory is loaded first when present).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path := os.Getenv("PDF2TEXT_CONFIG"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	if v, ok := os.LookupEnv("GRPC_ADDR"); ok {
		c.Server.GRPCAddr = strings.TrimSpace(v)
	}
	c.Server.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes)
	c.Server.RateLimitRPS = getEnvAsFloat64("RATE_LIMIT_RPS", c.Server.RateLimitRPS)
	c.Server.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", c.Server.RateLimitBurst)

	c.Storage.StagingDir = getEnv("STAGING_DIR", c.Storage.StagingDir)
	c.Storage.OutputDir = getEnv("OUTPUT_DIR", c.Storage.OutputDir)
	c.Storage.SamplePDF = getEnv("SAMPLE_PDF", c.Storage.SamplePDF)

	c.OCR.Engine = getEnv("OCR_ENGINE", c.OCR.Engine)
	c.OCR.Language = getEnv("OCR_LANG", c.OCR.Language)
	c.OCR.DPI = getEnvAsInt("OCR_DPI", c.OCR.DPI)
	c.OCR.PSM = getEnvAsInt("OCR_PSM", c.OCR.PSM)
	c.OCR.OEM = getEnvAsInt("OCR_OEM", c.OCR.OEM)
	c.OCR.AssumeStraightPages = getEnvAsBool("OCR_ASSUME_STRAIGHT", c.OCR.AssumeStraightPages)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.PdftoppmBin = getEnv("PDFTOPPM_BIN", c.OCR.PdftoppmBin)
	c.OCR.TesseractBin = getEnv("TESSERACT_BIN", c.OCR.TesseractBin)

	c.Convert.MaxPages = getEnvAsInt("MAX_PAGES", c.Convert.MaxPages)
	c.Convert.Timeout = getEnvAsDuration("CONVERT_TIMEOUT", c.Convert.Timeout)
	c.Convert.MaxConcurrent = getEnvAsInt("MAX_CONCURRENT", c.Convert.MaxConcurrent)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("HTTP_ADDR", c.Server.HTTPAddr, Required).
		Field("STAGING_DIR", c.Storage.StagingDir, Required).
		Field("OUTPUT_DIR", c.Storage.OutputDir, Required).
		Field("MAX_PAGES", c.Convert.MaxPages, Positive).
		Field("MAX_CONCURRENT", c.Convert.MaxConcurrent, Positive).
		Field("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes, Positive).
		Field("OCR_DPI", c.OCR.DPI, Positive).
		Field("OCR_ENGINE", c.OCR.Engine, OneOf("tesseract", "gosseract", "textlayer")).
		Field("LOG_FORMAT", c.Log.Format, OneOf("text", "json"))
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
