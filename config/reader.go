package config

import (
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/cyber-run/OpenMV-H7/logging"
)

// Read reads and validates the JSON config at path. Missing fields keep their defaults.
func Read(path string, logger logging.Logger) (cfg *Config, err error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open config %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return FromReader(path, f, logger)
}

// FromReader reads and validates a JSON config. originalPath is only used in messages.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	var attrs map[string]interface{}
	if err := json.NewDecoder(r).Decode(&attrs); err != nil {
		return nil, errors.Wrapf(err, "couldn't parse config %q", originalPath)
	}
	cfg, unused, err := decode(attrs)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't decode config %q", originalPath)
	}
	if len(unused) > 0 {
		logger.Warnw("ignoring unknown config keys", "path", originalPath, "keys", unused)
	}
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode lays attrs over the defaults and returns the keys nothing consumed.
func decode(attrs map[string]interface{}) (*Config, []string, error) {
	cfg := Default()
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &cfg,
		Metadata:   &md,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(mapstructure.StringToTimeDurationHookFunc()),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, nil, err
	}
	sort.Strings(md.Unused)
	return &cfg, md.Unused, nil
}
