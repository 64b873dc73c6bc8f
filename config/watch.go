package config

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	v      *viper.Viper
	logger *slog.Logger

	mu      sync.Mutex
	current *Config
}

func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Watcher{v: v, logger: logger, current: cfg}, nil
}

func (w *Watcher) SetLogger(logger *slog.Logger) {
	if logger != nil {
		w.logger = logger
	}
}

func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start begins watching. onChange receives the previous and the new config; an
// invalid file is logged and ignored.
func (w *Watcher) Start(onChange func(prev, next *Config)) {
	w.v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(w.v)
		if err != nil {
			w.logger.Error("config reload rejected", "file", e.Name, "error", err)
			return
		}

		w.mu.Lock()
		prev := w.current
		w.current = next
		w.mu.Unlock()

		w.logger.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		onChange(prev, next)
	})
	w.v.WatchConfig()
}
