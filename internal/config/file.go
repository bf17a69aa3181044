package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dmitrijs2005/gophvault/internal/flagx"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of Config. It is only used for decoding.
type FileConfig struct {
	VaultPath           string   `json:"vault_path" yaml:"vault_path" toml:"vault_path"`
	Driver              string   `json:"driver" yaml:"driver" toml:"driver"`
	DSN                 string   `json:"dsn" yaml:"dsn" toml:"dsn"`
	Format              string   `json:"format" yaml:"format" toml:"format"`
	HistoryLimit        int      `json:"history_limit" yaml:"history_limit" toml:"history_limit"`
	CompressAttachments bool     `json:"compress_attachments" yaml:"compress_attachments" toml:"compress_attachments"`
	MaxImportSize       int64    `json:"max_import_size" yaml:"max_import_size" toml:"max_import_size"`
	TempDir             string   `json:"temp_dir" yaml:"temp_dir" toml:"temp_dir"`
	LockTimeout         Duration `json:"lock_timeout" yaml:"lock_timeout" toml:"lock_timeout"`

	Backup struct {
		Dir  string `json:"dir" yaml:"dir" toml:"dir"`
		Keep int    `json:"keep" yaml:"keep" toml:"keep"`
	} `json:"backup" yaml:"backup" toml:"backup"`

	Log struct {
		Level      string `json:"level" yaml:"level" toml:"level"`
		Format     string `json:"format" yaml:"format" toml:"format"`
		File       string `json:"file" yaml:"file" toml:"file"`
		MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
		MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
		MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
	} `json:"log" yaml:"log" toml:"log"`

	S3 struct {
		Bucket    string `json:"bucket" yaml:"bucket" toml:"bucket"`
		Region    string `json:"region" yaml:"region" toml:"region"`
		Endpoint  string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
		AccessKey string `json:"access_key" yaml:"access_key" toml:"access_key"`
		SecretKey string `json:"secret_key" yaml:"secret_key" toml:"secret_key"`
		Prefix    string `json:"prefix" yaml:"prefix" toml:"prefix"`
	} `json:"s3" yaml:"s3" toml:"s3"`

	Feed struct {
		Addr   string `json:"addr" yaml:"addr" toml:"addr"`
		Secret string `json:"secret" yaml:"secret" toml:"secret"`
	} `json:"feed" yaml:"feed" toml:"feed"`

	License struct {
		Token  string `json:"token" yaml:"token" toml:"token"`
		Secret string `json:"secret" yaml:"secret" toml:"secret"`
	} `json:"license" yaml:"license" toml:"license"`

	UseKeyring bool `json:"use_keyring" yaml:"use_keyring" toml:"use_keyring"`
}

func fileConfigFrom(c *Config) FileConfig {
	var fc FileConfig
	fc.VaultPath = c.VaultPath
	fc.Driver = c.Driver
	fc.DSN = c.DSN
	fc.Format = c.Format
	fc.HistoryLimit = c.HistoryLimit
	fc.CompressAttachments = c.CompressAttachments
	fc.MaxImportSize = c.MaxImportSize
	fc.TempDir = c.TempDir
	fc.LockTimeout = Duration(c.LockTimeout)
	fc.Backup.Dir, fc.Backup.Keep = c.BackupDir, c.BackupKeep
	fc.Log.Level, fc.Log.Format, fc.Log.File = c.LogLevel, c.LogFormat, c.LogFile
	fc.Log.MaxSizeMB, fc.Log.MaxBackups, fc.Log.MaxAgeDays = c.LogMaxSizeMB, c.LogMaxBackups, c.LogMaxAgeDays
	fc.S3.Bucket, fc.S3.Region, fc.S3.Endpoint = c.S3Bucket, c.S3Region, c.S3Endpoint
	fc.S3.AccessKey, fc.S3.SecretKey, fc.S3.Prefix = c.S3AccessKey, c.S3SecretKey, c.S3Prefix
	fc.Feed.Addr, fc.Feed.Secret = c.FeedAddr, c.FeedSecret
	fc.License.Token, fc.License.Secret = c.LicenseToken, c.LicenseSecret
	fc.UseKeyring = c.UseKeyring
	return fc
}

func (fc *FileConfig) apply(c *Config) {
	c.VaultPath = fc.VaultPath
	c.Driver = fc.Driver
	c.DSN = fc.DSN
	c.Format = fc.Format
	c.HistoryLimit = fc.HistoryLimit
	c.CompressAttachments = fc.CompressAttachments
	c.MaxImportSize = fc.MaxImportSize
	c.TempDir = fc.TempDir
	c.LockTimeout = time.Duration(fc.LockTimeout)
	c.BackupDir, c.BackupKeep = fc.Backup.Dir, fc.Backup.Keep
	c.LogLevel, c.LogFormat, c.LogFile = fc.Log.Level, fc.Log.Format, fc.Log.File
	c.LogMaxSizeMB, c.LogMaxBackups, c.LogMaxAgeDays = fc.Log.MaxSizeMB, fc.Log.MaxBackups, fc.Log.MaxAgeDays
	c.S3Bucket, c.S3Region, c.S3Endpoint = fc.S3.Bucket, fc.S3.Region, fc.S3.Endpoint
	c.S3AccessKey, c.S3SecretKey, c.S3Prefix = fc.S3.AccessKey, fc.S3.SecretKey, fc.S3.Prefix
	c.FeedAddr, c.FeedSecret = fc.Feed.Addr, fc.Feed.Secret
	c.LicenseToken, c.LicenseSecret = fc.License.Token, fc.License.Secret
	c.UseKeyring = fc.UseKeyring
}

// decodeFile overlays fc with the contents of path.
func decodeFile(path string, fc *FileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".jsonc", "":
		return json.Unmarshal(jsonc.ToJSON(data), fc)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, fc)
	case ".toml":
		return toml.Unmarshal(data, fc)
	default:
		return fmt.Errorf("unsupported config file type %q", ext)
	}
}

// parseFile overlays cfg with the file named by -c/-config in args. Without
// such a flag cfg is left unchanged. Read and decode errors panic.
func parseFile(cfg *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	fc := fileConfigFrom(cfg)
	if err := decodeFile(path, &fc); err != nil {
		panic(fmt.Errorf("config %s: %w", path, err))
	}
	fc.apply(cfg)
}
