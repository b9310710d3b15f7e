package commands

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-ledger/internal/domain"
	"token-ledger/internal/ledger"
	"token-ledger/internal/observability"
	"token-ledger/internal/principal"
	"token-ledger/internal/rpc"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func newLedgerServer(t *testing.T) string {
	t.Helper()
	cfg := rpc.DefaultConfig()
	cfg.RequireSignatures = true
	srv := rpc.NewServer(ledger.New(), cfg,
		rpc.WithMetrics(observability.NewMetrics("test", prometheus.NewRegistry())))
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestKeygen(t *testing.T) {
	out, err := run(t, "keygen")
	require.NoError(t, err)

	var p, secret string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		require.Len(t, fields, 2)
		switch fields[0] {
		case "principal:":
			p = fields[1]
		case "secret:":
			secret = fields[1]
		}
	}

	kp, err := principal.ParseSecret(secret)
	require.NoError(t, err)
	assert.Equal(t, p, kp.Principal().String())
}

func TestClientCommands(t *testing.T) {
	endpoint := newLedgerServer(t)
	alice, err := principal.GenerateKeypair()
	require.NoError(t, err)
	bob, err := principal.GenerateKeypair()
	require.NoError(t, err)

	as := func(kp *principal.Keypair, args ...string) (string, error) {
		return run(t, append(args, "--endpoint", endpoint, "--secret", kp.Secret())...)
	}

	out, err := as(alice, "create-token", "Gold", "GLD", "1000", "--image", "https://img.example/gld.png")
	require.NoError(t, err)
	assert.Contains(t, out, "created GLD")

	_, err = as(alice, "transfer", "GLD", bob.Principal().String(), "250")
	require.NoError(t, err)

	out, err = as(alice, "balance", "GLD")
	require.NoError(t, err)
	assert.Equal(t, "750\n", out)

	out, err = as(alice, "balance", "GLD", bob.Principal().String())
	require.NoError(t, err)
	assert.Equal(t, "250\n", out)

	out, err = as(bob, "supply", "GLD")
	require.NoError(t, err)
	assert.Equal(t, "1000\n", out)

	out, err = as(bob, "tokens")
	require.NoError(t, err)
	assert.Contains(t, out, "GLD")
	assert.Contains(t, out, "https://img.example/gld.png")

	out, err = as(bob, "token", "GLD")
	require.NoError(t, err)
	var info domain.TokenInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "Gold", info.Name)

	out, err = as(bob, "history", "GLD")
	require.NoError(t, err)
	var txs []domain.Transaction
	require.NoError(t, json.Unmarshal([]byte(out), &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, uint64(250), txs[0].Amount)
	require.NotNil(t, txs[0].From)
	assert.Equal(t, alice.Principal(), *txs[0].From)
}

func TestClientCommands_Rejections(t *testing.T) {
	endpoint := newLedgerServer(t)
	alice, err := principal.GenerateKeypair()
	require.NoError(t, err)
	bob, err := principal.GenerateKeypair()
	require.NoError(t, err)

	_, err = run(t, "create-token", "Gold", "GLD", "10", "--endpoint", endpoint, "--secret", alice.Secret())
	require.NoError(t, err)

	_, err = run(t, "transfer", "GLD", bob.Principal().String(), "11", "--endpoint", endpoint, "--secret", alice.Secret())
	assert.Error(t, err)

	// Sending from someone else's account.
	_, err = run(t, "transfer", "GLD", bob.Principal().String(), "1",
		"--from", alice.Principal().String(), "--endpoint", endpoint, "--secret", bob.Secret())
	assert.Error(t, err)

	_, err = run(t, "token", "NOPE", "--endpoint", endpoint)
	assert.Error(t, err)

	_, err = run(t, "balance", "GLD", "--endpoint", endpoint)
	assert.ErrorContains(t, err, "PRINCIPAL is required")

	_, err = run(t, "create-token", "Gold", "GLD", "lots", "--endpoint", endpoint, "--secret", alice.Secret())
	assert.ErrorContains(t, err, "invalid amount")
}

func TestOriginChecker(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://a.example")

	assert.True(t, originChecker(nil)(req))
	assert.True(t, originChecker([]string{"*"})(req))
	assert.True(t, originChecker([]string{"https://a.example"})(req))
	assert.False(t, originChecker([]string{"https://b.example"})(req))
}

func TestMigrate_NoDSN(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := run(t, "migrate")
	assert.ErrorIs(t, err, errNoDSN)
}

func TestPrintMigrations(t *testing.T) {
	var out bytes.Buffer
	printMigrations(&out, "postgres", []string{"001_ledger.sql", "002_index.sql"})
	printMigrations(&out, "clickhouse", nil)

	assert.Equal(t, "postgres: applied 001_ledger.sql\n"+
		"postgres: applied 002_index.sql\n"+
		"clickhouse: schema up to date\n", out.String())
}
