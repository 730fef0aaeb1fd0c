package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/autoreduction/autosubmit/internal/datafile"
	"github.com/autoreduction/autosubmit/internal/icat"
	"github.com/autoreduction/autosubmit/internal/logging"
	"github.com/autoreduction/autosubmit/internal/queue"
	"github.com/autoreduction/autosubmit/internal/reductiondb"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is used when neither --config nor AUTOREDUCE_CONFIG is set.
	DefaultPath = "autoreduce.yml"

	// PathEnv names the environment variable holding the config path.
	PathEnv = "AUTOREDUCE_CONFIG"
)

// Environment variables that override values from the file.
const (
	EnvDatabaseURL   = "AUTOREDUCE_DATABASE_URL"
	EnvICATURL       = "AUTOREDUCE_ICAT_URL"
	EnvICATUsername  = "AUTOREDUCE_ICAT_USERNAME"
	EnvICATPassword  = "AUTOREDUCE_ICAT_PASSWORD"
	EnvQueueAddress  = "AUTOREDUCE_QUEUE_ADDRESS"
	EnvQueueUsername = "AUTOREDUCE_QUEUE_USERNAME"
	EnvQueuePassword = "AUTOREDUCE_QUEUE_PASSWORD"
)

// Section names the parts of the configuration a command depends on.
type Section uint8

const (
	SectionDatabase Section = 1 << iota
	SectionICAT
	SectionQueue

	// AllSections is what submit and batch need.
	AllSections = SectionDatabase | SectionICAT | SectionQueue
)

// Config represents the top-level autoreduce.yml configuration
type Config struct {
	Version    string             `yaml:"version"`
	Database   reductiondb.Config `yaml:"database"`
	ICAT       icat.Config        `yaml:"icat"`
	Queue      queue.Config       `yaml:"queue"`
	Datafile   DatafileConfig     `yaml:"datafile"`
	Submission SubmissionConfig   `yaml:"submission"`
	Logging    logging.Options    `yaml:"logging"`
}

// DatafileConfig controls how data files are located and read
type DatafileConfig struct {
	// PathRewrites are tried before the built-in \\isis\inst$\ rewrite.
	PathRewrites []datafile.PathRewrite `yaml:"path_rewrites,omitempty"`
	Field        string                 `yaml:"field,omitempty"`
}

// SubmissionConfig holds defaults applied to every submitted message
type SubmissionConfig struct {
	FileExtension string `yaml:"file_extension,omitempty"`
}

// Rewrites returns the configured path rewrites followed by the defaults.
func (d DatafileConfig) Rewrites() []datafile.PathRewrite {
	out := make([]datafile.PathRewrite, 0, len(d.PathRewrites)+len(datafile.DefaultRewrites))
	out = append(out, d.PathRewrites...)
	return append(out, datafile.DefaultRewrites...)
}

// ResolvePath picks the config file path: the flag value, then $AUTOREDUCE_CONFIG,
// then DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

// ApplyEnv overrides endpoints and credentials from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Database.URL, EnvDatabaseURL)
	set(&c.ICAT.URL, EnvICATURL)
	set(&c.ICAT.Username, EnvICATUsername)
	set(&c.ICAT.Password, EnvICATPassword)
	set(&c.Queue.Address, EnvQueueAddress)
	set(&c.Queue.Username, EnvQueueUsername)
	set(&c.Queue.Password, EnvQueuePassword)
}

// Validate applies defaults and performs strict validation on the configuration
func (c *Config) Validate() error {
	return c.ValidateFor(AllSections)
}

// ValidateFor is Validate for a command that only uses the given service
// sections. Defaults are applied everywhere; sections outside needs are not
// checked, so a database-only file passes ValidateFor(SectionDatabase).
func (c *Config) ValidateFor(needs Section) error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	c.Database.ApplyDefaults()
	if needs&SectionDatabase != 0 {
		if err := c.Database.Validate(); err != nil {
			return err
		}
	}

	c.ICAT.ApplyDefaults()
	if needs&SectionICAT != 0 {
		if err := c.ICAT.Validate(); err != nil {
			return err
		}
		for inst, prefix := range c.ICAT.Prefixes {
			if strings.TrimSpace(prefix) == "" {
				return fmt.Errorf("icat.instrument_prefixes: empty prefix for instrument '%s'", inst)
			}
		}
	}

	c.Queue.ApplyDefaults()
	if needs&SectionQueue != 0 {
		if err := c.Queue.Validate(); err != nil {
			return err
		}
	}

	for i, rw := range c.Datafile.PathRewrites {
		if rw.Prefix == "" {
			return fmt.Errorf("datafile.path_rewrites[%d]: prefix is required", i)
		}
	}
	if c.Datafile.Field == "" {
		c.Datafile.Field = datafile.DefaultField
	}

	if c.Submission.FileExtension == "" {
		c.Submission.FileExtension = "nxs"
	}
	if strings.HasPrefix(c.Submission.FileExtension, ".") {
		return errors.New("submission.file_extension must not start with '.'")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}

// Load reads autoreduce.yml from path, applies environment overrides and validates it
func Load(path string) (*Config, error) {
	return LoadFor(path, AllSections)
}

// LoadFor is Load for a command that only uses the given service sections.
func LoadFor(path string, needs Section) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv(os.Getenv)

	if err := config.ValidateFor(needs); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
