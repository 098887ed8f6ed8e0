package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/joeblew999/cagp/internal/metadata"
	"github.com/joeblew999/cagp/internal/utils"
	"github.com/joeblew999/cagp/internal/view"
)

func defaults() *Options {
	return &Options{
		Host:             DefaultHost,
		Port:             DefaultPort,
		DataDir:          DefaultDataDir,
		LogLevel:         DefaultLogLevel,
		MetadataEndpoint: DefaultMetadataEndpoint,
		PhotoBase:        DefaultPhotoBase,
		TilesFile:        DefaultTilesFile,
		Breakpoint:       DefaultBreakpoint,
	}
}

func TestMerge(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	yaml := []byte("port: 9000\ndata_dir: /srv/cagp\nbreakpoint: 800\nhost: 127.0.0.1\n")
	if err := v.ReadConfig(bytes.NewReader(yaml)); err != nil {
		t.Fatal(err)
	}

	opts := defaults()
	opts.Host = "localhost"
	Merge(v, opts)

	if opts.Port != 9000 || opts.DataDir != "/srv/cagp" || opts.Breakpoint != 800 {
		t.Errorf("merged=%+v", opts)
	}
	if opts.Host != "localhost" {
		t.Errorf("flag value overridden: host=%q", opts.Host)
	}
	if opts.TilesFile != DefaultTilesFile {
		t.Errorf("unset key changed tiles_file=%q", opts.TilesFile)
	}
}

func TestLoadConfigFile(t *testing.T) {
	defer utils.Log.SetLevel(logrus.InfoLevel)
	path := filepath.Join(t.TempDir(), "cagp.yaml")
	if err := os.WriteFile(path, []byte("tiles_file: custom.pmtiles\nlog_level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	opts := defaults()
	opts.Config = path
	if err := Load(opts); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.TilesFile != "custom.pmtiles" || opts.LogLevel != "warn" {
		t.Errorf("opts=%+v", opts)
	}
}

func TestLoadBadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cagp.yaml")
	if err := os.WriteFile(path, []byte("port: 8086\n"), 0644); err != nil {
		t.Fatal(err)
	}
	opts := defaults()
	opts.LogLevel = "loud"
	opts.Config = path
	if err := Load(opts); err == nil {
		t.Error("expected error")
	}
}

func TestDevicePath(t *testing.T) {
	o := &Options{DataDir: "/data"}
	if got := o.DevicePath(); got != filepath.Join("/data", "device.sqlite") {
		t.Errorf("DevicePath=%q", got)
	}
}

func TestFlagDefaultsMatchPackageDefaults(t *testing.T) {
	typ := reflect.TypeOf(Options{})
	for _, tt := range []struct {
		field, want string
	}{
		{"Host", DefaultHost},
		{"Port", strconv.Itoa(DefaultPort)},
		{"DataDir", DefaultDataDir},
		{"LogLevel", DefaultLogLevel},
		{"MetadataEndpoint", metadata.DefaultEndpoint},
		{"PhotoBase", DefaultPhotoBase},
		{"TilesFile", DefaultTilesFile},
		{"Breakpoint", strconv.Itoa(view.DefaultBreakpoint)},
	} {
		f, ok := typ.FieldByName(tt.field)
		if !ok {
			t.Fatalf("no field %s", tt.field)
		}
		if got := f.Tag.Get("default"); got != tt.want {
			t.Errorf("%s default=%q, want %q", tt.field, got, tt.want)
		}
	}
}
