package profile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("YOYOO_DATA", filepath.Join(t.TempDir(), "data"))

	p, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3000, p.Port)
	require.Equal(t, "confirm", p.DispatchMode)
	require.Equal(t, "http://127.0.0.1:8000", p.BackendBaseURL)
	require.Equal(t, 2, p.MaxRunningPerUser)
	require.Equal(t, 4, p.MaxRunningGlobal)
	require.Equal(t, 8, p.MaxQueuePerUser)
	require.Equal(t, 20*time.Minute, p.RunningTTL)
	require.Equal(t, 2*time.Second, p.PollInterval)
	require.Equal(t, 18*time.Second, p.InitialReportWindow)
	require.DirExists(t, p.Data)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("YOYOO_DATA", filepath.Join(t.TempDir(), "data"))
	t.Setenv("YOYOO_PORT", "8080")
	t.Setenv("YOYOO_DISPATCH_MODE", "auto")
	t.Setenv("YOYOO_MAX_RUNNING_PER_USER", "3")
	t.Setenv("YOYOO_RUNNING_TTL", "5m")

	p, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, p.Port)
	require.Equal(t, "auto", p.DispatchMode)
	require.Equal(t, 3, p.MaxRunningPerUser)
	require.Equal(t, 5*time.Minute, p.RunningTTL)
}

func TestLoad_RejectsInvalidDispatchMode(t *testing.T) {
	t.Setenv("YOYOO_DATA", filepath.Join(t.TempDir(), "data"))
	t.Setenv("YOYOO_DISPATCH_MODE", "yolo")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "dispatch mode")
}

func TestProfile_Paths(t *testing.T) {
	p := &Profile{Addr: "127.0.0.1", Port: 3000, Data: "/var/lib/yoyoo"}
	require.Equal(t, "127.0.0.1:3000", p.ListenAddr())
	require.Equal(t, filepath.Join("/var/lib/yoyoo", "task-gate.json"), p.GatePath())
	require.Equal(t, filepath.Join("/var/lib/yoyoo", "chat-store.json"), p.ChatPath())
}
