package connector

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func writeKey(t *testing.T, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte(passphrase))
	}
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestNewAuthenticator_KeyFileAndPassword(t *testing.T) {
	log, _ := testEntry()
	cfg := Config{KeyFiles: []string{writeKey(t, "")}, Password: "secret"}

	auth, err := newAuthenticator(cfg, Target{}, log)
	require.NoError(t, err)
	assert.Len(t, auth.methods, 2)
	assert.NoError(t, auth.close())
}

func TestNewAuthenticator_SkipsEncryptedIdentity(t *testing.T) {
	log, _ := testEntry()
	target := Target{IdentityFiles: []string{writeKey(t, "pass"), filepath.Join(t.TempDir(), "absent")}}

	_, err := newAuthenticator(Config{}, target, log)
	assert.True(t, errors.Is(err, ErrNoAuthMethod))

	_, err = newAuthenticator(Config{Password: "pw"}, target, log)
	assert.NoError(t, err)
}

func TestNewAuthenticator_Errors(t *testing.T) {
	log, _ := testEntry()

	_, err := newAuthenticator(Config{KeyFiles: []string{filepath.Join(t.TempDir(), "absent")}}, Target{}, log)
	assert.Error(t, err)

	_, err = newAuthenticator(Config{PrivateKey: "not a key"}, Target{}, log)
	assert.Error(t, err)

	_, err = newAuthenticator(Config{AgentSocket: filepath.Join(t.TempDir(), "agent.sock")}, Target{}, log)
	assert.Error(t, err)
}

func TestAgentAddress(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "/run/agent.sock")
	t.Setenv("XMWAVE_TEST_AGENT", "/run/other.sock")

	addr, explicit := agentAddress(defaultAgentSocket)
	assert.Equal(t, "/run/agent.sock", addr)
	assert.False(t, explicit)

	addr, explicit = agentAddress("env:XMWAVE_TEST_AGENT")
	assert.Equal(t, "/run/other.sock", addr)
	assert.True(t, explicit)

	addr, explicit = agentAddress("/tmp/agent")
	assert.Equal(t, "/tmp/agent", addr)
	assert.True(t, explicit)
}
