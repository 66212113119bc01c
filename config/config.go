package config

// New 创建配置加载器，cfg 为 nil 时使用默认配置
//
// 返回的 Loader 尚未加载任何来源，需要调用 Load。
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.setDefaults()
	return newLoader(cfg), nil
}
