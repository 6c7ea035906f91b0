package config

import "maps"

// Option 加载选项.
type Option func(*loadOptions)

type loadOptions struct {
	envPrefix  string
	configType string
	overlays   []string
	defaults   map[string]any
}

// WithEnvPrefix 绑定带前缀的环境变量，QUESTLINE_STORE_TYPE 覆盖 store.type.
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) { o.envPrefix = prefix }
}

// WithConfigType 显式指定格式，忽略扩展名.
func WithConfigType(configType string) Option {
	return func(o *loadOptions) { o.configType = configType }
}

// WithDefaults 设置默认值，多次调用时合并.
func WithDefaults(defaults map[string]any) Option {
	return func(o *loadOptions) {
		if o.defaults == nil {
			o.defaults = make(map[string]any, len(defaults))
		}
		maps.Copy(o.defaults, defaults)
	}
}

// WithOverlay 在主配置之后合并覆盖文件，不存在的文件被忽略.
func WithOverlay(paths ...string) Option {
	return func(o *loadOptions) { o.overlays = append(o.overlays, paths...) }
}

func newLoadOptions(opts []Option) *loadOptions {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
