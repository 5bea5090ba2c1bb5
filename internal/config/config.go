// Package config loads runtime settings for the migrator CLI and the sheets
// handler from the environment (and, for the CLI, from bound flags).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys shared by viper, flags and the env bindings below.
const (
	KeyRegion            = "region"
	KeySourceBucket      = "source_bucket"
	KeyDestBucket        = "dest_bucket"
	KeySpreadsheetID     = "spreadsheet_id"
	KeySheetName         = "sheet_name"
	KeyCredentialsPath   = "credentials_path"
	KeyCredentialsSecret = "credentials_secret"
	KeyStatusTable       = "status_table"
	KeyReportPrefix      = "report_prefix"
	KeyTopicArn          = "topic_arn"
	KeyDryRun            = "dry_run"
	KeyLogLevel          = "log_level"
)

var envNames = map[string]string{
	KeyRegion:            "AWS_REGION",
	KeySourceBucket:      "BUCKET_NAME",
	KeyDestBucket:        "SUBMISSION_BUCKET",
	KeySpreadsheetID:     "SPREADSHEET_ID",
	KeySheetName:         "SHEET_NAME",
	KeyCredentialsPath:   "GOOGLE_CREDENTIALS_PATH",
	KeyCredentialsSecret: "GOOGLE_CREDENTIALS_SECRET",
	KeyStatusTable:       "MIGRATION_STATUS_TABLE",
	KeyReportPrefix:      "MIGRATION_REPORT_PREFIX",
	KeyTopicArn:          "MIGRATION_TOPIC_ARN",
	KeyDryRun:            "MIGRATION_DRY_RUN",
	KeyLogLevel:          "LOG_LEVEL",
}

var defaults = map[string]any{
	KeySheetName:       "Sheet2",
	KeyCredentialsPath: "./google-credentials.json",
	KeyLogLevel:        "info",
	KeyDryRun:          false,
}

// Migration holds everything the batch migrator needs.
type Migration struct {
	Region          string `mapstructure:"region"`
	SourceBucket    string `mapstructure:"source_bucket"`
	DestBucket      string `mapstructure:"dest_bucket"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	SheetName       string `mapstructure:"sheet_name"`
	CredentialsPath string `mapstructure:"credentials_path"`
	StatusTable     string `mapstructure:"status_table"`
	ReportPrefix    string `mapstructure:"report_prefix"`
	TopicArn        string `mapstructure:"topic_arn"`
	DryRun          bool   `mapstructure:"dry_run"`
	LogLevel        string `mapstructure:"log_level"`
}

// Handler holds the settings of the sheets lambda.
type Handler struct {
	Region            string `mapstructure:"region"`
	SpreadsheetID     string `mapstructure:"spreadsheet_id"`
	SheetName         string `mapstructure:"sheet_name"`
	CredentialsSecret string `mapstructure:"credentials_secret"`
	LogLevel          string `mapstructure:"log_level"`
}

// MissingError lists the environment variables that were required but empty.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Vars, ", "))
}

// New returns a viper instance with env bindings and defaults applied. Flags,
// when non-nil, are bound by name so "--sheet-name" overrides SHEET_NAME.
func New(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if flags != nil {
		for key := range envNames {
			f := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		}
	}
	return v, nil
}

// LoadMigration reads and validates the migrator settings.
func LoadMigration(v *viper.Viper) (Migration, error) {
	var cfg Migration
	if err := v.Unmarshal(&cfg); err != nil {
		return Migration{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.trim()
	return cfg, cfg.Validate()
}

// LoadHandler reads and validates the handler settings.
func LoadHandler(v *viper.Viper) (Handler, error) {
	var cfg Handler
	if err := v.Unmarshal(&cfg); err != nil {
		return Handler{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Region = strings.TrimSpace(cfg.Region)
	cfg.SpreadsheetID = strings.TrimSpace(cfg.SpreadsheetID)
	cfg.CredentialsSecret = strings.TrimSpace(cfg.CredentialsSecret)
	return cfg, cfg.Validate()
}

func (c *Migration) trim() {
	c.Region = strings.TrimSpace(c.Region)
	c.SourceBucket = strings.TrimSpace(c.SourceBucket)
	c.DestBucket = strings.TrimSpace(c.DestBucket)
	c.SpreadsheetID = strings.TrimSpace(c.SpreadsheetID)
	c.SheetName = strings.TrimSpace(c.SheetName)
	c.CredentialsPath = strings.TrimSpace(c.CredentialsPath)
	c.StatusTable = strings.TrimSpace(c.StatusTable)
	c.ReportPrefix = strings.Trim(strings.TrimSpace(c.ReportPrefix), "/")
	c.TopicArn = strings.TrimSpace(c.TopicArn)
}

// Validate reports every required key that is empty.
func (c Migration) Validate() error {
	return requireAll(map[string]string{
		KeyRegion:          c.Region,
		KeySourceBucket:    c.SourceBucket,
		KeyDestBucket:      c.DestBucket,
		KeySpreadsheetID:   c.SpreadsheetID,
		KeySheetName:       c.SheetName,
		KeyCredentialsPath: c.CredentialsPath,
	})
}

func (c Handler) Validate() error {
	return requireAll(map[string]string{
		KeyRegion:            c.Region,
		KeySpreadsheetID:     c.SpreadsheetID,
		KeyCredentialsSecret: c.CredentialsSecret,
	})
}

func requireAll(values map[string]string) error {
	var missing []string
	// stable order for error messages
	for _, key := range []string{
		KeyRegion, KeySourceBucket, KeyDestBucket, KeySpreadsheetID,
		KeySheetName, KeyCredentialsPath, KeyCredentialsSecret,
	} {
		value, ok := values[key]
		if ok && value == "" {
			missing = append(missing, envNames[key])
		}
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	return nil
}
