package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag is the single definition of a CLI flag that overrides a config key.
type Flag struct {
	// Name is the long flag name (e.g. "storage-driver").
	Name string

	// Shorthand is the one-letter short flag. Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.driver").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string

	// Bool marks boolean flags.
	Bool bool
}

// FlagSet maps registry keys to flag definitions.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagStorageDriver   = "storage-driver"
	FlagSQLite          = "sqlite"
	FlagPostgresDSN     = "postgres-dsn"
	FlagBlobDriver      = "blob-driver"
	FlagMediaRoot       = "media-root"
	FlagS3Bucket        = "s3-bucket"
	FlagS3Endpoint      = "s3-endpoint"
	FlagDebug           = "debug"
	FlagJSONLogs        = "json-logs"
	FlagMetricsTextfile = "metrics-textfile"
)

// Flags holds every config-backed flag.
var Flags = FlagSet{
	FlagStorageDriver:   {Name: "storage-driver", ViperKey: "storage.driver", Description: "Entity store backend (memory, sqlite, postgres)"},
	FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite database"},
	FlagPostgresDSN:     {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagBlobDriver:      {Name: "blob-driver", ViperKey: "blob.driver", Description: "File storage backend (fs, s3, memory)"},
	FlagMediaRoot:       {Name: "media-root", ViperKey: "blob.fs_root", Description: "Root directory for stored files"},
	FlagS3Bucket:        {Name: "s3-bucket", ViperKey: "blob.s3.bucket", Description: "S3 bucket for stored files"},
	FlagS3Endpoint:      {Name: "s3-endpoint", ViperKey: "blob.s3.endpoint", Description: "Custom S3 endpoint (MinIO and friends)"},
	FlagDebug:           {Name: "debug", Shorthand: "d", ViperKey: "log.debug", Description: "Enable debug logging", Bool: true},
	FlagJSONLogs:        {Name: "json-logs", ViperKey: "log.json", Description: "Emit JSON logs", Bool: true},
	FlagMetricsTextfile: {Name: "metrics-textfile", ViperKey: "metrics.textfile_path", Description: "Write Prometheus metrics to this file after each command"},
}

// AddPersistentFlags registers every flag of fs on cmd's persistent flag set.
// Help output shows the built-in defaults; the values themselves only apply
// when no other source sets the key.
func AddPersistentFlags(cmd *cobra.Command, fs FlagSet) {
	defaults := viper.New()
	setDefaults(defaults, Default())
	for _, def := range fs {
		if def.Bool {
			cmd.PersistentFlags().BoolP(def.Name, def.Shorthand, defaults.GetBool(def.ViperKey), def.Description)
			continue
		}
		cmd.PersistentFlags().StringP(def.Name, def.Shorthand, defaults.GetString(def.ViperKey), def.Description)
	}
}

// BindFlags connects flags registered from fs to v so that explicitly set flags
// win over env, config file and defaults.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, fs FlagSet) error {
	for key, def := range fs {
		f := flags.Lookup(def.Name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(def.ViperKey, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", key, err)
		}
	}
	return nil
}
