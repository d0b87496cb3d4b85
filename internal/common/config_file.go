package common

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed config.schema.json
var configSchemaJSON string

var (
	configSchema     *jsonschema.Schema
	configSchemaErr  error
	configSchemaOnce sync.Once
)

func compiledConfigSchema() (*jsonschema.Schema, error) {
	configSchemaOnce.Do(func() {
		configSchema, configSchemaErr = jsonschema.CompileString("config.schema.json", configSchemaJSON)
	})
	return configSchema, configSchemaErr
}

type fileConfig struct {
	Server struct {
		HTTPAddr       *string  `yaml:"http_addr"`
		GRPCAddr       *string  `yaml:"grpc_addr"`
		MaxUploadBytes *int64   `yaml:"max_upload_bytes"`
		RateLimitRPS   *float64 `yaml:"rate_limit_rps"`
		RateLimitBurst *int     `yaml:"rate_limit_burst"`
	} `yaml:"server"`
	Storage struct {
		StagingDir *string `yaml:"staging_dir"`
		OutputDir  *string `yaml:"output_dir"`
		SamplePDF  *string `yaml:"sample_pdf"`
	} `yaml:"storage"`
	OCR struct {
		Engine              *string `yaml:"engine"`
		Language            *string `yaml:"language"`
		DPI                 *int    `yaml:"dpi"`
		PSM                 *int    `yaml:"psm"`
		OEM                 *int    `yaml:"oem"`
		AssumeStraightPages *bool   `yaml:"assume_straight_pages"`
		TessdataDir         *string `yaml:"tessdata_dir"`
		PdftoppmBin         *string `yaml:"pdftoppm_bin"`
		TesseractBin        *string `yaml:"tesseract_bin"`
	} `yaml:"ocr"`
	Convert struct {
		MaxPages      *int    `yaml:"max_pages"`
		Timeout       *string `yaml:"timeout"`
		MaxConcurrent *int    `yaml:"max_concurrent"`
	} `yaml:"convert"`
	Log struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
	} `yaml:"log"`
}

// ApplyFile overlays the YAML configuration file at path onto c. The document
// is validated against the embedded JSON schema before any field is applied.
func (c *Config) ApplyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "read config file", err)
	}
	return c.ApplyYAML(raw)
}

// ApplyYAML is ApplyFile for an in-memory document.
func (c *Config) ApplyYAML(raw []byte) error {
	if err := validateConfigDocument(raw); err != nil {
		return NewAppError("CONFIG_ERROR", "config file does not match schema", fmt.Errorf("%w: %v", ErrValidation, err))
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return NewAppError("CONFIG_ERROR", "decode config file", err)
	}

	set(&c.Server.HTTPAddr, fc.Server.HTTPAddr)
	set(&c.Server.GRPCAddr, fc.Server.GRPCAddr)
	set(&c.Server.MaxUploadBytes, fc.Server.MaxUploadBytes)
	set(&c.Server.RateLimitRPS, fc.Server.RateLimitRPS)
	set(&c.Server.RateLimitBurst, fc.Server.RateLimitBurst)

	set(&c.Storage.StagingDir, fc.Storage.StagingDir)
	set(&c.Storage.OutputDir, fc.Storage.OutputDir)
	set(&c.Storage.SamplePDF, fc.Storage.SamplePDF)

	set(&c.OCR.Engine, fc.OCR.Engine)
	set(&c.OCR.Language, fc.OCR.Language)
	set(&c.OCR.DPI, fc.OCR.DPI)
	set(&c.OCR.PSM, fc.OCR.PSM)
	set(&c.OCR.OEM, fc.OCR.OEM)
	set(&c.OCR.AssumeStraightPages, fc.OCR.AssumeStraightPages)
	set(&c.OCR.TessdataDir, fc.OCR.TessdataDir)
	set(&c.OCR.PdftoppmBin, fc.OCR.PdftoppmBin)
	set(&c.OCR.TesseractBin, fc.OCR.TesseractBin)

	set(&c.Convert.MaxPages, fc.Convert.MaxPages)
	set(&c.Convert.MaxConcurrent, fc.Convert.MaxConcurrent)
	if fc.Convert.Timeout != nil {
		d, err := time.ParseDuration(*fc.Convert.Timeout)
		if err != nil {
			return NewAppError("CONFIG_ERROR", "convert.timeout", err)
		}
		c.Convert.Timeout = d
	}

	set(&c.Log.Level, fc.Log.Level)
	set(&c.Log.Format, fc.Log.Format)
	return nil
}

func validateConfigDocument(raw []byte) error {
	schema, err := compiledConfigSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	// round-trip through JSON so numbers have the shapes the validator expects
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return schema.Validate(v)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
