package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glowchat/glowchat/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultRoomPassword      = "glowchat"
	defaultAdminPasswordFile = "admin-config.json"
)

// Config is the global configuration object which is filled via the
// configuration file, environment (prefix GLOWCHAT) and command-line flags.
type Config struct {
	RoomConfig        RoomConfig        `mapstructure:"room"`
	AdminConfig       AdminConfig       `mapstructure:"admin"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	PresenceConfig    PresenceConfig    `mapstructure:"presence"`
	LogLevel          string            `mapstructure:"log_level"`
}

// RoomConfig seeds the room singleton on first start. Later password changes
// go through the store, not through this file.
type RoomConfig struct {
	Password string `mapstructure:"password"`
	Inactive bool   `mapstructure:"inactive"`
}

// AdminConfig locates the credential file holding the admin password.
type AdminConfig struct {
	PasswordFile string `mapstructure:"password_file"`
}

// PersistenceConfig selects the store backend. Type is one of "buntdb",
// "sqlite", "postgres" or "gorm"; Dialect narrows "gorm" to a driver.
type PersistenceConfig struct {
	Type    string `mapstructure:"type"`
	DSN     string `mapstructure:"dsn"`
	Dialect string `mapstructure:"dialect"`
}

// PresenceConfig tunes the ephemeral registries. Zero values fall back to the
// defaults the polling clients are calibrated against.
type PresenceConfig struct {
	TypingVisibleFor time.Duration `mapstructure:"typing_visible_for"`
	TypingStaleAfter time.Duration `mapstructure:"typing_stale_after"`
	ActiveStaleAfter time.Duration `mapstructure:"active_stale_after"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	name = strings.Replace(name, "-", "_", -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("room.password", defaultRoomPassword)
	viper.SetDefault("admin.password_file", defaultAdminPasswordFile)
	viper.SetDefault("persistence.type", "buntdb")
	viper.SetDefault("persistence.dsn", ":memory:")
	viper.SetDefault("log_level", "INFO")
	if err := viper.BindPFlags(flagSet); err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("GLOWCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(contents)); err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	return &cfg, nil
}
