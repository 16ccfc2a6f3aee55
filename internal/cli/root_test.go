package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "cellsync", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"show", "log", "compact", "insert", "backspace", "layout", "watch", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, DefaultDatabase, dbFlag.DefValue)

	for _, name := range []string{"config", "postgres", "redis"} {
		require.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestEditCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"insert", "backspace"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)

		at := sub.Flags().Lookup("at")
		require.NotNil(t, at)
		assert.Equal(t, "-1", at.DefValue)
		require.NotNil(t, sub.Flags().Lookup("row"))
		require.NotNil(t, sub.Flags().Lookup("col"))
		require.NotNil(t, sub.Flags().Lookup("cols"))
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "show", "notes"})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootAppliesConfigFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "from-config.db")
	cfgPath := filepath.Join(dir, "cellsync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database: "+dbPath+"\n"), 0644))

	cmd := NewRootCommand()
	cmd.SetOut(&syncBuffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "insert", "notes", "hi"})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "insert wrote to the configured database")
}

func TestRootFlagOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cellsync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database: "+filepath.Join(dir, "config.db")+"\nupload_delay: 5ms\n"), 0644))
	flagDB := filepath.Join(dir, "flag.db")

	cmd := NewRootCommand()
	cmd.SetOut(&syncBuffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "--db", flagDB, "insert", "notes", "hi"})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(flagDB)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "config.db"))
	assert.True(t, os.IsNotExist(err), "config database untouched")
}

func TestRootMissingConfigFile(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "show", "notes"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestApplyConfig(t *testing.T) {
	cfg := &Config{
		Database:       "file.db",
		PostgresURL:    "postgres://file",
		RedisAddr:      "file:6379",
		UploadDelay:    20 * time.Millisecond,
		CompactRetries: 9,
	}

	opts := &RootOptions{Database: "flag.db", RedisAddr: "flag:6379"}
	opts.applyConfig(cfg, func(name string) bool { return name == "db" || name == "redis" })

	assert.Equal(t, "flag.db", opts.Database)
	assert.Equal(t, "flag:6379", opts.RedisAddr)
	assert.Equal(t, "postgres://file", opts.PostgresURL)
	assert.Equal(t, 20*time.Millisecond, opts.UploadDelay)
	assert.Equal(t, 9, opts.CompactRetries)
	assert.Equal(t, 9, opts.retryPolicy().Attempts)
}

func TestRetryPolicyDefault(t *testing.T) {
	opts := &RootOptions{}
	assert.Equal(t, 5, opts.retryPolicy().Attempts)
}
