// Package config 基于 viper 把配置文件解码为强类型结构.
//
// 加载顺序为 默认值 < 主配置文件 < 覆盖文件 < 环境变量，
// 解码后依次调用 Defaulter 和 Validatable.
package config

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrFileNotFound 主配置文件不存在.
	ErrFileNotFound = errors.New("config: 配置文件不存在")
	// ErrInvalidType 无法识别的配置格式.
	ErrInvalidType = errors.New("config: 不支持的配置文件类型")
	// ErrReadConfig 读取或合并配置失败.
	ErrReadConfig = errors.New("config: 读取配置失败")
	// ErrUnmarshal 解码配置失败.
	ErrUnmarshal = errors.New("config: 解析配置失败")
	// ErrValidation 配置未通过验证.
	ErrValidation = errors.New("config: 配置验证失败")
)

// Validatable 解码并填充默认值后调用.
type Validatable interface {
	Validate() error
}

// Defaulter 解码后、验证前调用.
type Defaulter interface {
	ApplyDefaults()
}

// TypeOf 按扩展名返回 viper 配置类型，无法识别时返回空串.
func TypeOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	}
	return ""
}

// LocalOverlay 返回主配置旁的本地覆盖文件路径，例如 questline.yaml 对应 questline.local.yaml.
func LocalOverlay(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}
