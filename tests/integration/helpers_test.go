//go:build integration
// +build integration

package integration

import (
	"os"
	"path/filepath"
	"testing"

	_ "github.com/joho/godotenv/autoload"

	llm "github.com/lizzyg/llmbridge"
	"github.com/lizzyg/llmbridge/internal/config"
)

// bridgeFromYAML writes cfg to a temp file and loads a Bridge from it.
func bridgeFromYAML(t *testing.T, cfg string) *llm.Bridge {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LLM_CONFIG_PATH", path)
	config.ResetForTest()
	t.Cleanup(config.ResetForTest)

	b, err := llm.NewFromFile()
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	return b
}

func requireEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if os.Getenv(k) == "" {
			t.Skipf("%s not set; skipping integration test", k)
		}
	}
}
