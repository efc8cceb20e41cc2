package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

var (
	supportedAlarmBackends = []string{"db", "redis", "memory"}
)

type ConfigSettings struct {
	// General daemon settings
	RequiredSettings RequiredConfig `toml:"RequiredSettings,omitempty" json:"RequiredSettings,omitempty"`

	MiscSettings MiscConfig `toml:"MiscSettings,omitempty" json:"MiscSettings,omitempty"`

	// Backend client settings
	BackendSettings BackendConfig `toml:"BackendSettings,omitempty" json:"BackendSettings,omitempty"`
}

type RequiredConfig struct {
	DBConnectURL string
	BindAddress  string
}

type MiscConfig struct {
	Port int

	// where the synced namespace (api url, auth token) lives
	SyncFile string

	// Alarm persistence
	AlarmBackend  string
	RedisAddr     string
	RedisPassword string

	// how many detected solutions to keep around
	SolutionHistory int

	// browser origins allowed to use the local API and sockets, e.g.
	// "chrome-extension://<id>". Requests without an Origin header (the
	// popup CLI) are always allowed.
	ExtensionOrigins []string
}

type BackendConfig struct {
	// seconds
	RequestTimeout int
	// origin whose "token" cookie may be imported; defaults to the api url
	CookieOrigin string
}

// Load in a config
func (conf *ConfigSettings) SetConfig(path string) error {
	tempConf := ConfigSettings{}
	fileContent, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("configuration file (%s) not found: %w", path, err)
	}

	if md, err := toml.Decode(string(fileContent), &tempConf); err != nil {
		return err
	} else {
		for _, undecoded := range md.Undecoded() {
			slog.Warn("undecoded configuration key \"" + undecoded.String() + "\" will not be used.")
		}
	}

	// check the configuration and set defaults
	if err := checkConfig(&tempConf); err != nil {
		return fmt.Errorf("configuration file (%s) is invalid: %w", path, err)
	}

	// if we're here, the config is valid
	*conf = tempConf

	return nil
}

// NormalizeOrigin reduces an origin to lower-cased "scheme://host[:port]".
func NormalizeOrigin(origin string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not a valid origin: %q", origin)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

// general error checking
func checkConfig(conf *ConfigSettings) error {
	var errResult error

	// required settings

	if conf.RequiredSettings.DBConnectURL == "" {
		errResult = errors.Join(errResult, errors.New("no db connect url specified"))
	}

	if conf.RequiredSettings.BindAddress == "" {
		errResult = errors.Join(errResult, errors.New("no bind address specified"))
	}

	// optional settings

	if conf.MiscSettings.Port == 0 {
		conf.MiscSettings.Port = 8765
	}
	if conf.MiscSettings.Port < 0 || conf.MiscSettings.Port > 65535 {
		errResult = errors.Join(errResult, fmt.Errorf("port %d out of range", conf.MiscSettings.Port))
	}

	if conf.MiscSettings.SyncFile == "" {
		conf.MiscSettings.SyncFile = "./config/sync.toml"
	}

	if conf.MiscSettings.AlarmBackend == "" {
		conf.MiscSettings.AlarmBackend = "db"
	}
	conf.MiscSettings.AlarmBackend = strings.ToLower(conf.MiscSettings.AlarmBackend)
	if !slices.Contains(supportedAlarmBackends, conf.MiscSettings.AlarmBackend) {
		errResult = errors.Join(errResult, errors.New("not a valid alarm backend: "+conf.MiscSettings.AlarmBackend))
	}

	if conf.MiscSettings.AlarmBackend == "redis" && conf.MiscSettings.RedisAddr == "" {
		conf.MiscSettings.RedisAddr = "localhost:6379"
	}

	if conf.MiscSettings.SolutionHistory == 0 {
		conf.MiscSettings.SolutionHistory = 20
	}
	if conf.MiscSettings.SolutionHistory < 1 {
		errResult = errors.Join(errResult, errors.New("solution history must be at least 1"))
	}

	for i, origin := range conf.MiscSettings.ExtensionOrigins {
		normalized, err := NormalizeOrigin(origin)
		if err != nil {
			errResult = errors.Join(errResult, err)
			continue
		}
		conf.MiscSettings.ExtensionOrigins[i] = normalized
	}
	if len(conf.MiscSettings.ExtensionOrigins) == 0 {
		slog.Warn("no extension origins configured; browser requests to the local API will be refused")
	}

	if conf.BackendSettings.RequestTimeout == 0 {
		conf.BackendSettings.RequestTimeout = 10
	}
	if conf.BackendSettings.RequestTimeout < 0 {
		errResult = errors.Join(errResult, errors.New("request timeout must be positive"))
	}

	// errResult is nil by default if no errors occured
	return errResult
}
