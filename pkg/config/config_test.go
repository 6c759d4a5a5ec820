package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	require.NoError(t, Init(""))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sessions", cfg.SessionDir)
	assert.Equal(t, 10*time.Second, cfg.Poll)
	assert.Equal(t, 120*time.Second, cfg.RunTimeout)
	assert.Equal(t, int64(10<<20), cfg.MaxAttachmentSize)
	assert.Equal(t, "INBOX", cfg.IMAP.Mailbox)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "gpt-4.1", cfg.OpenAI.Model)
	assert.Equal(t, filepath.Join("sessions", "audit.db"), cfg.AuditDB)
}

func TestLoadFromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session_dir: /var/lib/claimflow
poll_interval: 30s
max_attachment_size: 5242880
smtp:
  host: smtp.example.com
  port: 465
assistants:
  theft_assistant: asst_theft123
`), 0o644))

	require.NoError(t, Init(path))
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/claimflow", cfg.SessionDir)
	assert.Equal(t, 30*time.Second, cfg.Poll)
	assert.Equal(t, int64(5242880), cfg.MaxAttachmentSize)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "asst_theft123", cfg.Assistants["theft_assistant"])
}

func TestInitMissingExplicitFileFails(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	assert.Error(t, Init(filepath.Join(t.TempDir(), "missing.yaml")))
}
