package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/xform/internal/memory"
	"github.com/born-ml/xform/transform"
)

// fileConfig is the YAML form of the engine configuration.
//
//	log_level: debug
//	scratch: async-device
//	parallel:
//	  workers: 4
//	memory:
//	  limit: 268435456
//	  pool: true
type fileConfig struct {
	LogLevel string `yaml:"log_level"`
	Scratch  string `yaml:"scratch"`
	Parallel struct {
		Enabled  *bool `yaml:"enabled"`
		Workers  int   `yaml:"workers"`
		MinChunk int   `yaml:"min_chunk"`
	} `yaml:"parallel"`
	Memory struct {
		Limit int64 `yaml:"limit"`
		Pool  *bool `yaml:"pool"`
	} `yaml:"memory"`
}

func loadConfig(path string) (transform.Config, slog.Level, error) {
	if path == "" {
		return transform.DefaultConfig(), slog.LevelWarn, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return transform.Config{}, 0, err
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (transform.Config, slog.Level, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return transform.Config{}, 0, fmt.Errorf("config: %w", err)
	}

	cfg := transform.DefaultConfig()
	level := slog.LevelWarn
	if fc.LogLevel != "" {
		if err := level.UnmarshalText([]byte(fc.LogLevel)); err != nil {
			return transform.Config{}, 0, fmt.Errorf("config: log_level: %w", err)
		}
	}

	if fc.Scratch != "" {
		space, ok := parseSpace(fc.Scratch)
		if !ok {
			return transform.Config{}, 0, fmt.Errorf("config: unknown scratch space %q", fc.Scratch)
		}
		cfg.ScratchSpace = space
	}

	if fc.Parallel.Workers < 0 || fc.Parallel.MinChunk < 0 {
		return transform.Config{}, 0, fmt.Errorf("config: negative parallel settings")
	}
	if fc.Parallel.Workers > 0 {
		cfg.Parallel.NumWorkers = min(fc.Parallel.Workers, runtime.NumCPU()*4)
		cfg.Parallel.Enabled = cfg.Parallel.NumWorkers > 1
	}
	if fc.Parallel.MinChunk > 0 {
		cfg.Parallel.MinChunkSize = fc.Parallel.MinChunk
	}
	if fc.Parallel.Enabled != nil {
		cfg.Parallel.Enabled = *fc.Parallel.Enabled
	}

	if fc.Memory.Limit < 0 {
		return transform.Config{}, 0, fmt.Errorf("config: negative memory limit")
	}
	cfg.Memory.Limit = fc.Memory.Limit
	if fc.Memory.Pool != nil {
		cfg.Memory.Pool = *fc.Memory.Pool
	}
	return cfg, level, nil
}

func parseSpace(name string) (memory.Space, bool) {
	for _, s := range []memory.Space{memory.Managed, memory.Host, memory.Device, memory.AsyncDevice} {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}
