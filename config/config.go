// Package config loads the bridge configuration with viper.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/spf13/viper"
)

var logger = xlog.NewPackageLogger("github.com/niclabs/keychain-bridge", "config")

// EnvPrefix prefixes the environment variables that override the file.
const EnvPrefix = "KEYCHAIN_BRIDGE"

// Special values of the list settings.
const (
	All  = "all"
	None = "none"
)

type Config struct {
	Criptoki CriptokiConfig
	Storage  StorageConfig
	Sqlite3  Sqlite3Config
	Watcher  WatcherConfig
	Zmq      ZmqConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

type CriptokiConfig struct {
	ManufacturerID string `mapstructure:"manufacturer_id"`
	Description    string
	VersionMajor   uint8 `mapstructure:"version_major"`
	VersionMinor   uint8 `mapstructure:"version_minor"`
	AskPin         bool  `mapstructure:"ask_pin"`

	// CertSlotApps are the process names that see the certificate slot.
	CertSlotApps []string `mapstructure:"cert_slot_apps"`

	// CertificateList are the subject substrings of the trust roots.
	CertificateList []string `mapstructure:"certificate_list"`
}

type StorageConfig struct {
	Type string
}

type Sqlite3Config struct {
	Path string
}

type WatcherConfig struct {
	Type string
}

type ZmqConfig struct {
	Endpoint string
	// Timeout is the receive timeout in milliseconds; the watcher checks
	// for cancellation between receives.
	Timeout int
}

type MetricsConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level string
	File  string
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("criptoki.manufacturer_id", "NIC Chile")
	v.SetDefault("criptoki.description", "Keychain PKCS#11 Bridge Library")
	v.SetDefault("criptoki.version_major", 1)
	v.SetDefault("criptoki.version_minor", 0)
	v.SetDefault("criptoki.ask_pin", true)
	v.SetDefault("criptoki.cert_slot_apps", []string{"firefox", "thunderbird"})
	v.SetDefault("criptoki.certificate_list", []string{"DoD Root CA"})
	v.SetDefault("storage.type", "sqlite3")
	v.SetDefault("sqlite3.path", "keychain-bridge.db")
	v.SetDefault("watcher.type", None)
	v.SetDefault("zmq.endpoint", "ipc:///tmp/keychain-bridge.ipc")
	v.SetDefault("zmq.timeout", 500)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.file", "")
}

// New returns a viper instance with the defaults, the search paths and
// the environment bindings of the bridge.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigName("config")
	v.AddConfigPath("/etc/keychain-bridge/")
	v.AddConfigPath("$HOME/.keychain-bridge")
	v.AddConfigPath("./")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file if there is one. A missing file leaves the
// defaults in place.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
		logger.Infof("no config file found, using defaults")
	}
	return GetConfig(v)
}

// GetConfig unmarshals the current state of v.
func GetConfig(v *viper.Viper) (*Config, error) {
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &conf, nil
}

// Default returns the configuration with every key at its default.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	conf, err := GetConfig(v)
	if err != nil {
		// defaults always unmarshal
		panic(err)
	}
	return conf
}

// CertSlotEnabled tells whether the process named progname sees the
// certificate slot.
func (c *CriptokiConfig) CertSlotEnabled(progname string) bool {
	name := strings.ToLower(filepath.Base(progname))
	for _, app := range c.CertSlotApps {
		app = strings.ToLower(strings.TrimSpace(app))
		switch app {
		case All:
			return true
		case None:
			return false
		}
		if app != "" && strings.Contains(name, app) {
			return true
		}
	}
	return false
}

// Roots returns the trust root subject substrings, or nil when the scan is
// disabled.
func (c *CriptokiConfig) Roots() []string {
	roots := make([]string, 0, len(c.CertificateList))
	for _, root := range c.CertificateList {
		root = strings.TrimSpace(root)
		if strings.EqualFold(root, None) {
			return nil
		}
		if root != "" {
			roots = append(roots, root)
		}
	}
	return roots
}

// SetupLogging applies the log level and, when a file is configured,
// sends the log there.
func SetupLogging(c *LogConfig) error {
	if c.Level != "" {
		level, err := xlog.ParseLevel(strings.ToUpper(c.Level))
		if err != nil {
			return errors.WithStack(err)
		}
		xlog.SetGlobalLogLevel(level)
	}
	if c.File == "" {
		return nil
	}
	f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return errors.Wrapf(err, "open log file %s", c.File)
	}
	xlog.SetFormatter(xlog.NewPrettyFormatter(f))
	return nil
}
