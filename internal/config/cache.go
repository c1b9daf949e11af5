package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/joho/godotenv"
)

var (
	dotEnvOnce sync.Once
	dotEnvErr  error
	loaded     = &configCache{}
)

func loadDotEnv() error {
	dotEnvOnce.Do(func() {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			dotEnvErr = fmt.Errorf("load .env: %w", err)
		}
	})
	return dotEnvErr
}

// configCache remembers the outcome of loading one config path.
type configCache struct {
	mu   sync.Mutex
	path string
	cfg  *LLMConfig
	err  error
}

func (c *configCache) get(path string, load func(string) (*LLMConfig, error)) (*LLMConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != path {
		c.cfg, c.err = load(path)
		c.path = path
	}
	return c.cfg, c.err
}

// ResetForTest forgets the cached config and the .env outcome so a test can
// load a different file within the same process.
func ResetForTest() {
	loaded.mu.Lock()
	loaded.path, loaded.cfg, loaded.err = "", nil, nil
	loaded.mu.Unlock()
	dotEnvOnce = sync.Once{}
	dotEnvErr = nil
}
