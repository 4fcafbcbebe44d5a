package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"exec", "upload", "setup", "start", "stop"})

	for _, flag := range []string{"config", "log-dir", "log-level", "verbose"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
	assert.NotNil(t, uploadCmd.Flags().Lookup("to"))
	assert.NotNil(t, setupCmd.Flags().Lookup("vhost"))
}

func TestCommandArgs(t *testing.T) {
	assert.Error(t, execCmd.Args(execCmd, []string{"host"}))
	assert.NoError(t, execCmd.Args(execCmd, []string{"host", "uptime"}))
	assert.Error(t, setupCmd.Args(setupCmd, []string{}))
	assert.Error(t, uploadCmd.Args(uploadCmd, []string{"host"}))
}

func TestInitRuntime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xmwave.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ssh:\n  user: deploy\nlog:\n  level: warn\n"), 0o600))

	configPath, logLevel, logDir, verbose = path, "", "", false
	t.Cleanup(func() { configPath, logLevel = "", "" })

	require.NoError(t, initRuntime(rootCmd, nil))
	assert.Equal(t, "deploy", cfg.SSH.User)

	logLevel = "loud"
	assert.Error(t, initRuntime(rootCmd, nil))

	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	logLevel = ""
	assert.Error(t, initRuntime(rootCmd, nil))
}
