package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tmpim/krist/internal/api"
	"github.com/tmpim/krist/internal/api/apitest"
	"github.com/tmpim/krist/internal/bridge"
)

func newNode(t *testing.T) *api.Services {
	t.Helper()

	services, _ := apitest.New(t)
	srv := httptest.NewServer(bridge.NewServer(services.Bus, services.Motd, services.Switches).Handler())
	t.Cleanup(srv.Close)

	bridgeURL = srv.URL
	return services
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--bridge", bridgeURL}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSwitchCommand(t *testing.T) {
	services := newNode(t)

	out, err := run(t, "switch", "mining", "off")
	require.NoError(t, err)
	require.Contains(t, out, "mining is now off")

	enabled, err := services.Switches.MiningEnabled(context.Background())
	require.NoError(t, err)
	require.False(t, enabled)

	_, err = run(t, "switch", "mining", "sideways")
	require.Error(t, err)

	_, err = run(t, "switch", "gravity", "on")
	require.Error(t, err)
}

func TestMotdCommand(t *testing.T) {
	services := newNode(t)

	_, err := run(t, "motd", "Maintenance at noon")
	require.NoError(t, err)

	m, err := services.Motd.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Maintenance at noon", m.Text)
}

func TestPublishCommand(t *testing.T) {
	newNode(t)

	file := filepath.Join(t.TempDir(), "name.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"name":"example","owner":"k8juvewcui","unpaid":500}`), 0o600))

	out, err := run(t, "publish", "name", "--file", file)
	require.NoError(t, err)
	require.Contains(t, out, "Published name event to 0 sessions")

	_, err = run(t, "publish", "party", "--file", file)
	require.Error(t, err)

	// Block events need the work that follows them.
	_, err = run(t, "publish", "block", "--file", file)
	require.Error(t, err)
}
