package dataglue

import (
	"errors"
	"testing"
)

func TestDefaultTransferConfig(t *testing.T) {
	cfg := DefaultTransferConfig()

	if cfg.Delimiter != '\t' {
		t.Errorf("default delimiter should be a tab, but %q", cfg.Delimiter)
	}
	if cfg.Encoding != "" || cfg.NullToken != "" {
		t.Errorf("default encoding and null token should be empty, but %+v", cfg)
	}
	if cfg.Header || cfg.Truncate || cfg.Columns != nil {
		t.Errorf("default flags should be off, but %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("the default config should validate, but %v", err)
	}
}

func TestTransferConfig_Validate(t *testing.T) {
	valid := []TransferConfig{
		{Delimiter: ','},
		{Delimiter: '\t', NullToken: `\N`, Encoding: "shift_jis"},
		{Delimiter: '|', Header: true, Columns: []string{"id", "name"}},
	}
	for _, cfg := range valid {
		if err := cfg.Validate(); err != nil {
			t.Errorf("%+v should validate, but %v", cfg, err)
		}
	}

	invalid := []TransferConfig{
		{},
		{Delimiter: '\n'},
		{Delimiter: '\r'},
		{Delimiter: '"'},
		{Delimiter: '\x01'},
		{Delimiter: ',', NullToken: "a,b"},
		{Delimiter: ',', Encoding: "klingon"},
		{Delimiter: ',', Columns: []string{"id", "id"}},
		{Delimiter: ',', Columns: []string{"id", ""}},
	}
	for _, cfg := range invalid {
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%+v should not validate", cfg)
			continue
		}
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%+v should fail with a ConfigError, but %T", cfg, err)
		}
	}
}

func TestTransferConfig_Validate_nullTokenWithoutDelimiter(t *testing.T) {
	cfg := TransferConfig{Delimiter: '\t', NullToken: "a,b"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("a null token is only checked against the delimiter in use, but %v", err)
	}
}
