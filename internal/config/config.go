package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	apperrors "github.com/binito/despesify/internal/errors"
	"github.com/binito/despesify/internal/models"
)

// Default returns the configuration used when no file is given
func Default() *models.Config {
	return &models.Config{
		Port: 8520,
		Host: "0.0.0.0",
		Detection: models.DetectionConfig{
			Fallback:      true,
			UpscaleTarget: 1000,
		},
		Payload: models.PayloadConfig{
			Tolerance: 0.01,
			RateTable: map[string]int{
				"NOR": 23,
				"INT": 13,
				"RED": 6,
				"ISE": 0,
				"OUT": 0,
			},
		},
		Storage: models.StorageConfig{
			Endpoint: "minio:9000",
			Bucket:   "faturas",
		},
		NIF: models.NIFConfig{
			BaseURL:       "https://www.nif.pt/",
			RatePerSecond: 1,
			TimeoutSecs:   10,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error when optional is set.
func Load(path string, optional bool) (*models.Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, fmt.Errorf("failed to parse config: %w", err))
			}
		case optional && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnv(config)

	if err := validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overrides with environment variables if present
func applyEnv(config *models.Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		config.Storage.Endpoint = endpoint
	}
	if key := os.Getenv("MINIO_ACCESS_KEY"); key != "" {
		config.Storage.AccessKey = key
	}
	if key := os.Getenv("MINIO_SECRET_KEY"); key != "" {
		config.Storage.SecretKey = key
	}
	if bucket := os.Getenv("MINIO_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
	}
	if os.Getenv("MINIO_USE_SSL") == "true" {
		config.Storage.UseSSL = true
	}
	if key := os.Getenv("NIF_PT_API_KEY"); key != "" {
		config.NIF.APIKey = key
	}
	if timeout := os.Getenv("QR_DETECTION_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			config.Detection.TimeoutSeconds = t
		}
	}
}

func validate(config *models.Config) error {
	if config.Payload.Tolerance < 0 {
		return apperrors.New(apperrors.ErrConfigInvalid.Code, "payload.tolerance must not be negative")
	}
	if config.Detection.UpscaleTarget <= 0 {
		return apperrors.New(apperrors.ErrConfigInvalid.Code, "detection.upscale_target must be positive")
	}
	if config.Detection.TimeoutSeconds < 0 {
		return apperrors.New(apperrors.ErrConfigInvalid.Code, "detection.timeout_seconds must not be negative")
	}
	return nil
}
