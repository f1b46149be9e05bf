package gcp

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

type StorageMode string

const (
	StorageModeGCS      StorageMode = "gcs"
	StorageModeEmulator StorageMode = "gcs_emulator"
)

// StorageConfig selects the backend and the two buckets media moves between.
type StorageConfig struct {
	Mode         StorageMode
	EmulatorHost string
	// ModeInferred is set when the emulator was picked only because STORAGE_EMULATOR_HOST is present.
	ModeInferred bool

	SourceBucket string
	// SourcePrefix is the folder under which one sub-folder per company lives.
	SourcePrefix string
	DestBucket   string
	// DestCDNDomain, when set, replaces storage.googleapis.com in public URLs.
	DestCDNDomain string
	PublicBaseURL string
}

func (cfg StorageConfig) IsEmulator() bool { return cfg.Mode == StorageModeEmulator }

type StorageConfigErrorCode string

const (
	StorageConfigInvalidMode         StorageConfigErrorCode = "invalid_mode"
	StorageConfigMissingEmulatorHost StorageConfigErrorCode = "missing_emulator_host"
	StorageConfigInvalidEmulatorHost StorageConfigErrorCode = "invalid_emulator_host"
	StorageConfigMissingBucket       StorageConfigErrorCode = "missing_bucket"
	StorageConfigInvalidPublicBase   StorageConfigErrorCode = "invalid_public_base_url"
)

type StorageConfigError struct {
	Code  StorageConfigErrorCode
	Field string
	Value string
	Cause error
}

func (e *StorageConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case StorageConfigInvalidMode:
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", e.Value, StorageModeGCS, StorageModeEmulator)
	case StorageConfigMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", StorageModeEmulator)
	case StorageConfigInvalidEmulatorHost:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.Value)
	case StorageConfigMissingBucket:
		return fmt.Sprintf("missing env var %s", e.Field)
	case StorageConfigInvalidPublicBase:
		return fmt.Sprintf("invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL", e.Value)
	default:
		return "invalid object storage config"
	}
}

func (e *StorageConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveStorageConfigFromEnv builds a validated StorageConfig from the process environment.
func ResolveStorageConfigFromEnv() (StorageConfig, error) {
	cfg := StorageConfig{
		EmulatorHost:  strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")), "/"),
		SourceBucket:  strings.TrimSpace(os.Getenv("SOURCE_GCS_BUCKET_NAME")),
		SourcePrefix:  strings.Trim(strings.TrimSpace(os.Getenv("SOURCE_GCS_PREFIX")), "/"),
		DestBucket:    strings.TrimSpace(os.Getenv("DEST_GCS_BUCKET_NAME")),
		DestCDNDomain: strings.TrimSpace(os.Getenv("DEST_CDN_DOMAIN")),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("OBJECT_STORAGE_PUBLIC_BASE_URL")), "/"),
	}

	rawMode := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_MODE"))
	switch StorageMode(strings.ToLower(rawMode)) {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = StorageModeEmulator
			cfg.ModeInferred = true
		} else {
			cfg.Mode = StorageModeGCS
		}
	case StorageModeGCS:
		cfg.Mode = StorageModeGCS
	case StorageModeEmulator:
		cfg.Mode = StorageModeEmulator
	default:
		return cfg, &StorageConfigError{Code: StorageConfigInvalidMode, Value: rawMode}
	}

	if err := ValidateStorageConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func ValidateStorageConfig(cfg StorageConfig) error {
	switch cfg.Mode {
	case StorageModeGCS, StorageModeEmulator:
	default:
		return &StorageConfigError{Code: StorageConfigInvalidMode, Value: string(cfg.Mode)}
	}
	if cfg.DestBucket == "" {
		return &StorageConfigError{Code: StorageConfigMissingBucket, Field: "DEST_GCS_BUCKET_NAME"}
	}
	if cfg.PublicBaseURL != "" && !isAbsoluteURL(cfg.PublicBaseURL) {
		return &StorageConfigError{Code: StorageConfigInvalidPublicBase, Value: cfg.PublicBaseURL}
	}
	if !cfg.IsEmulator() {
		return nil
	}
	if cfg.EmulatorHost == "" {
		return &StorageConfigError{Code: StorageConfigMissingEmulatorHost}
	}
	if !isAbsoluteURL(cfg.EmulatorHost) {
		_, err := url.Parse(cfg.EmulatorHost)
		return &StorageConfigError{Code: StorageConfigInvalidEmulatorHost, Value: cfg.EmulatorHost, Cause: err}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.TrimSpace(u.Scheme) != "" && strings.TrimSpace(u.Host) != ""
}
