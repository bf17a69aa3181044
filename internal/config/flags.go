package config

import (
	"flag"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
)

func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("gophvault", flag.ContinueOnError)

	fs.StringVar(&cfg.VaultPath, "d", cfg.VaultPath, "path to the vault database file")
	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "database driver (sqlite or pgx)")
	fs.StringVar(&cfg.DSN, "dsn", cfg.DSN, "data source name, overrides -d")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "format of new vaults (classic or extended)")
	fs.IntVar(&cfg.HistoryLimit, "history", cfg.HistoryLimit, "history snapshots kept per entry (0 = unlimited)")
	fs.BoolVar(&cfg.CompressAttachments, "compress", cfg.CompressAttachments, "gzip new attachments")
	fs.Int64Var(&cfg.MaxImportSize, "max-import", cfg.MaxImportSize, "largest importable file in bytes (0 = no limit)")
	fs.StringVar(&cfg.TempDir, "tmp", cfg.TempDir, "directory for exported temporary files")
	fs.DurationVar(&cfg.LockTimeout, "lock", cfg.LockTimeout, "auto-lock after this much inactivity")

	fs.StringVar(&cfg.BackupDir, "backup-dir", cfg.BackupDir, "directory for local backups")
	fs.IntVar(&cfg.BackupKeep, "backup-keep", cfg.BackupKeep, "local backups kept per vault (0 = all)")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text or json)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file, empty for stderr")

	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "mirror backups to this S3 bucket")
	fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", cfg.S3Endpoint, "custom S3 endpoint")

	fs.StringVar(&cfg.FeedAddr, "feed", cfg.FeedAddr, "serve the event feed on this address")

	fs.StringVar(&cfg.LicenseToken, "license", cfg.LicenseToken, "license token")
	fs.BoolVar(&cfg.UseKeyring, "keyring", cfg.UseKeyring, "remember the master password in the OS keyring")

	return fs
}

// parseFlags overlays cfg with the flags it knows about; other arguments
// are left for other components. Parse errors panic.
func parseFlags(cfg *Config, args []string) {
	fs := newFlagSet(cfg)
	if err := fs.Parse(flagx.FilterArgs(args, flagx.FlagNames(fs))); err != nil {
		panic(err)
	}
}
