package config

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/impedance/logging"
)

// Read reads a config from the given file. Environment variables in the file are expanded
// first. Files ending in .yaml or .yml are YAML, everything else is JSON.
func Read(
	ctx context.Context,
	filePath string,
	logger logging.Logger,
) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(ctx, filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(
	ctx context.Context,
	originalPath string,
	r io.Reader,
	logger logging.Logger,
) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	switch strings.ToLower(filepath.Ext(originalPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from %s", originalPath)
	}

	unprocessedConfig := Config{ConfigFilePath: originalPath}
	if err := decode(raw, &unprocessedConfig); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config")
	}
	if err := processConfig(&unprocessedConfig, logger); err != nil {
		return nil, errors.Wrap(err, "failed to process Config")
	}
	return &unprocessedConfig, nil
}

// decode converts the generic document into the typed config. Keys nobody reads are errors so
// that typos do not silently fall back to defaults.
func decode(raw map[string]interface{}, out *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

func processConfig(unprocessedConfig *Config, logger logging.Logger) error {
	if err := unprocessedConfig.Ensure(logger); err != nil {
		return err
	}
	UpdateFileConfigDebug(unprocessedConfig.Debug)
	return nil
}
