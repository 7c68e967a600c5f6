package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
providers:
  - contract_address: "0xDEADBEEF00000000000000000000000000000000"
    provider: "wss://chain-a.example/ws"
    chain_name: "chain-a"
    start_block: 10
    block_time_sec: 2
    block_update_sec: 5
    log_update_sec: 5
    provider_id: 1
    batch_size: 5000
    skip_old: true
ipfs_nodes:
  - api_url: "http://node1:5001"
    gateway: "http://node1:8080"
retry_failed_cids_sec: 60
update_nodes_sec: 30
admin_secret: "s3cret"
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 1)
	require.Equal(t, "chain-a", cfg.Providers[0].ChainName)
	require.True(t, cfg.Providers[0].SkipOld)
	require.Equal(t, ":8080", cfg.ListenAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yml")
	require.Error(t, err)
}

func TestLoadMissingAdminSecret(t *testing.T) {
	bad := `
ipfs_nodes:
  - api_url: "http://node1:5001"
only_api: true
`
	path := writeTemp(t, bad)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadOnlyAPIAllowsNoProviders(t *testing.T) {
	ok := `
ipfs_nodes:
  - api_url: "http://node1:5001"
admin_secret: "s"
only_api: true
`
	path := writeTemp(t, ok)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.OnlyAPI)
}

func TestResolveDatabaseURLFallsBackToEnv(t *testing.T) {
	cfg := &Config{}
	t.Setenv("DATABASE_URL", "postgres://example")
	got, err := cfg.ResolveDatabaseURL()
	require.NoError(t, err)
	require.Equal(t, "postgres://example", got)
}
