package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/storage"
)

// Config holds runtime settings for the gophvault CLI.
//
// DSN overrides VaultPath when set; for the sqlite driver VaultPath is the
// database file. MaxImportSize is in bytes, 0 disables the limit.
type Config struct {
	VaultPath           string
	Driver              string
	DSN                 string
	Format              string
	HistoryLimit        int
	CompressAttachments bool
	MaxImportSize       int64
	TempDir             string
	LockTimeout         time.Duration

	BackupDir  string
	BackupKeep int

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string

	FeedAddr   string
	FeedSecret string

	LicenseToken  string
	LicenseSecret string

	UseKeyring bool
}

// userHomeDir is a test seam.
var userHomeDir = os.UserHomeDir

func defaultBaseDir() string {
	home, err := userHomeDir()
	if err != nil || home == "" {
		return "." + common.AppName
	}
	return filepath.Join(home, "."+common.AppName)
}

// LoadDefaults populates c with defaults rooted at ~/.gophvault.
func (c *Config) LoadDefaults() {
	base := defaultBaseDir()

	*c = Config{
		VaultPath:     filepath.Join(base, "vault.db"),
		Driver:        storage.DriverSQLite,
		Format:        string(models.FormatExtended),
		HistoryLimit:  10,
		MaxImportSize: 64 << 20,
		TempDir:       filepath.Join(base, "tmp"),
		LockTimeout:   15 * time.Minute,
		BackupDir:     filepath.Join(base, "backups"),
		BackupKeep:    5,
		LogLevel:      "info",
		LogFormat:     "text",
		LogFile:       filepath.Join(base, "logs", common.AppName+".log"),
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
		LogMaxAgeDays: 28,
		S3Region:      "us-east-1",
		S3Prefix:      common.AppName,
	}
}

// Target returns the driver and data source to open.
func (c *Config) Target() (driver, dsn string) {
	if c.DSN != "" {
		return c.Driver, c.DSN
	}
	return c.Driver, c.VaultPath
}

// MirrorEnabled reports whether an S3 bucket is configured.
func (c *Config) MirrorEnabled() bool { return c.S3Bucket != "" }

// LoadConfig builds a Config from defaults, the config file named in
// os.Args and command-line flags, in that order.
func LoadConfig() *Config {
	return Load(os.Args[1:])
}

// Load is LoadConfig for an explicit argument list.
func Load(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
