package models

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// QR detection config
	Detection DetectionConfig `yaml:"detection"`

	// Payload decoding config
	Payload PayloadConfig `yaml:"payload"`

	// Auth config
	Auth AuthConfig `yaml:"auth"`

	// Persistence config (optional)
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`

	// Issuer name lookup
	NIF NIFConfig `yaml:"nif"`
}

// DetectionConfig controls the QR detection chain
type DetectionConfig struct {
	Fallback       bool `yaml:"fallback"`        // run the fallback scanner after the primary one fails
	UpscaleTarget  int  `yaml:"upscale_target"`  // small images are upscaled so their longest side reaches this (px)
	TimeoutSeconds int  `yaml:"timeout_seconds"` // per-image deadline, 0 = none
}

// PayloadConfig controls decoding of the QR payload
type PayloadConfig struct {
	Tolerance float64        `yaml:"tolerance"`  // absolute tolerance when matching N/O against the VAT sum
	RateTable map[string]int `yaml:"rate_table"` // VAT rate code -> percent
}

// AuthConfig for the HTTP API
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DatabaseConfig for PostgreSQL
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig for MinIO
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// NIFConfig for the nif.pt company lookup
type NIFConfig struct {
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	TimeoutSecs   int     `yaml:"timeout_seconds"`
}
