package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load 从文件加载配置.
func Load[T any](path string, opts ...Option) (*T, error) {
	o := newLoadOptions(opts)

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if o.configType == "" && TypeOf(path) == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, path)
	}

	v := newViper(o)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
	}

	for _, overlay := range o.overlays {
		if err := mergeOverlay(v, overlay); err != nil {
			return nil, err
		}
	}
	return decode[T](v)
}

// MustLoad 加载配置，失败时 panic.
func MustLoad[T any](path string, opts ...Option) *T {
	cfg, err := Load[T](path, opts...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadFromBytes 从内存数据加载配置，configType 为 yaml、json 或 toml.
func LoadFromBytes[T any](data []byte, configType string, opts ...Option) (*T, error) {
	o := newLoadOptions(opts)
	o.configType = configType

	v := newViper(o)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
	}
	return decode[T](v)
}

func newViper(o *loadOptions) *viper.Viper {
	v := viper.New()
	if o.configType != "" {
		v.SetConfigType(o.configType)
	}
	for key, value := range o.defaults {
		v.SetDefault(key, value)
	}
	if o.envPrefix != "" {
		v.SetEnvPrefix(o.envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return v
}

func mergeOverlay(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadConfig, err)
	}

	if t := TypeOf(path); t != "" {
		v.SetConfigType(t)
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrReadConfig, path, err)
	}
	return nil
}

func decode[T any](v *viper.Viper) (*T, error) {
	cfg := new(T)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnmarshal, err)
	}
	if d, ok := any(cfg).(Defaulter); ok {
		d.ApplyDefaults()
	}
	if val, ok := any(cfg).(Validatable); ok {
		if err := val.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return cfg, nil
}
