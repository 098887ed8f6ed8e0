// Package config resolves server options from flags, environment, a .env
// file and an optional cagp.yaml.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/joeblew999/cagp/internal/metadata"
	"github.com/joeblew999/cagp/internal/utils"
	"github.com/joeblew999/cagp/internal/view"
)

// Defaults for Options. Values from cagp.yaml only replace a field still
// holding its default, so flags and SERVICE_* variables win.
const (
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 8086
	DefaultDataDir          = ".data"
	DefaultLogLevel         = "info"
	DefaultMetadataEndpoint = metadata.DefaultEndpoint
	DefaultPhotoBase        = "https://storage.googleapis.com/cleanandgreenphl"
	DefaultTilesFile        = "vacant_properties.pmtiles"
	DefaultBreakpoint       = view.DefaultBreakpoint
)

// Options defines all CLI flags and env vars for the cagp server.
// Flags: --host, --port, --data-dir, --log-level, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host             string `doc:"Host to bind to" default:"0.0.0.0"`
	Port             int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir          string `doc:"Directory for property data, tiles and device state" default:".data"`
	LogLevel         string `doc:"Log level (debug, info, warn, error)" default:"info"`
	MetadataEndpoint string `doc:"Object metadata endpoint used to locate linked properties" default:"https://storage.googleapis.com/storage/v1/b/cleanandgreenphl/o"`
	PhotoBase        string `doc:"Base URL of property photos" default:"https://storage.googleapis.com/cleanandgreenphl"`
	TilesFile        string `doc:"PMTiles archive under <data-dir>/tiles used by the map" default:"vacant_properties.pmtiles"`
	Breakpoint       int    `doc:"Viewport width below which the small-screen layout applies" default:"640"`
	Config           string `doc:"Config file (default $HOME/cagp.yaml)"`
}

// Load reads .env into the environment and merges cagp.yaml into opts.
// Neither file is required.
func Load(opts *Options) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		utils.Log.Warnf("Could not read .env: %v", err)
	}

	v := viper.New()
	if opts.Config != "" {
		v.SetConfigFile(opts.Config)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName("cagp")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("cagp")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	} else {
		utils.Log.Debugf("Using config file: %s", v.ConfigFileUsed())
	}

	Merge(v, opts)
	return utils.SetLogLevel(opts.LogLevel)
}

// Merge copies the values set in v over fields of opts that still hold
// their defaults.
func Merge(v *viper.Viper, opts *Options) {
	str := func(key string, field *string, def string) {
		if *field == def && v.IsSet(key) {
			*field = v.GetString(key)
		}
	}
	num := func(key string, field *int, def int) {
		if *field == def && v.IsSet(key) {
			*field = v.GetInt(key)
		}
	}
	str("host", &opts.Host, DefaultHost)
	num("port", &opts.Port, DefaultPort)
	str("data_dir", &opts.DataDir, DefaultDataDir)
	str("log_level", &opts.LogLevel, DefaultLogLevel)
	str("metadata_endpoint", &opts.MetadataEndpoint, DefaultMetadataEndpoint)
	str("photo_base", &opts.PhotoBase, DefaultPhotoBase)
	str("tiles_file", &opts.TilesFile, DefaultTilesFile)
	num("breakpoint", &opts.Breakpoint, DefaultBreakpoint)
}

// DevicePath is the SQLite file holding per-device state.
func (o *Options) DevicePath() string {
	return filepath.Join(o.DataDir, "device.sqlite")
}
