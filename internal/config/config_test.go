package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "SmartDesk AI", cfg.Persona.Name)
	assert.Equal(t, 50, cfg.Persona.MemoryLimit)
	assert.True(t, cfg.Persona.CalendarReminders)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.True(t, cfg.LLM.Ollama.Enabled)
	assert.Equal(t, "mistral", cfg.LLM.Ollama.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, 5*time.Minute, cfg.Calendar.PollInterval())
	assert.Equal(t, 30*time.Minute, cfg.Calendar.ReminderWindow())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
persona:
  name: Desk Bot
  memory_limit: 20
store:
  backend: memory
llm:
  ollama:
    model: llama3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Desk Bot", cfg.Persona.Name)
	assert.Equal(t, 20, cfg.Persona.MemoryLimit)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "llama3", cfg.LLM.Ollama.Model)
	// Untouched fields keep their defaults.
	assert.Equal(t, "https://google.serper.dev/search", cfg.Search.Endpoint)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: sqlite\n"), 0o644))
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("OLLAMA_MODEL", "phi3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "phi3", cfg.LLM.Ollama.Model)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "cassandra")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("persona: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
