package conf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// SetupConfig 读取配置文件，文件不存在时写入默认配置
func SetupConfig(path string) (Bootstrap, error) {
	cfg := DefaultConfig()
	cfg.ConfigPath = path

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, WriteConfig(&cfg, path)
	}
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return cfg, nil
}

// WriteConfig 将配置写回文件
func WriteConfig(cfg *Bootstrap, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
