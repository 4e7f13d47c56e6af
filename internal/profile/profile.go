// Package profile resolves runtime configuration from flags and YOYOO_*
// environment variables.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the effective runtime configuration of a gateway instance.
type Profile struct {
	// Addr is the bind address. Empty means all interfaces.
	Addr string `mapstructure:"addr"`
	// Port is the HTTP listen port.
	Port int `mapstructure:"port"`
	// Data is the directory holding the durable JSON documents.
	Data string `mapstructure:"data"`
	// IntentRules optionally points at a YAML phrase-table override file.
	IntentRules string `mapstructure:"intent-rules"`

	// Execution gate limits.
	MaxRunningPerUser int           `mapstructure:"max-running-per-user"`
	MaxRunningGlobal  int           `mapstructure:"max-running-global"`
	MaxQueuePerUser   int           `mapstructure:"max-queue-per-user"`
	RunningTTL        time.Duration `mapstructure:"running-ttl"`

	// Execution progress polling.
	PollInterval        time.Duration `mapstructure:"poll-interval"`
	PollTimeout         time.Duration `mapstructure:"poll-timeout"`
	InitialReportWindow time.Duration `mapstructure:"initial-report-window"`

	// DispatchMode is auto, confirm, or manual.
	DispatchMode string `mapstructure:"dispatch-mode"`

	// Team backend endpoint.
	BackendBaseURL       string        `mapstructure:"backend-base-url"`
	BackendTimeout       time.Duration `mapstructure:"backend-timeout"`
	BackendHealthTimeout time.Duration `mapstructure:"backend-health-timeout"`
}

// ListenAddr returns the host:port string echo should bind.
func (p *Profile) ListenAddr() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Port)
}

// GatePath is the execution gate document location.
func (p *Profile) GatePath() string {
	return filepath.Join(p.Data, "task-gate.json")
}

// ChatPath is the conversation store document location.
func (p *Profile) ChatPath() string {
	return filepath.Join(p.Data, "chat-store.json")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "")
	v.SetDefault("port", 3000)
	v.SetDefault("data", "data")
	v.SetDefault("intent-rules", "")
	v.SetDefault("max-running-per-user", 2)
	v.SetDefault("max-running-global", 4)
	v.SetDefault("max-queue-per-user", 8)
	v.SetDefault("running-ttl", 20*time.Minute)
	v.SetDefault("poll-interval", 2*time.Second)
	v.SetDefault("poll-timeout", 10*time.Minute)
	v.SetDefault("initial-report-window", 18*time.Second)
	v.SetDefault("dispatch-mode", "confirm")
	v.SetDefault("backend-base-url", "http://127.0.0.1:8000")
	v.SetDefault("backend-timeout", 10*time.Minute)
	v.SetDefault("backend-health-timeout", 3*time.Second)
}

// Load builds a Profile from defaults overridden by YOYOO_* environment
// variables (YOYOO_PORT, YOYOO_BACKEND_BASE_URL, ...). The data directory is
// created if absent.
func Load() (*Profile, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("yoyoo")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, errors.Wrap(err, "unmarshal profile")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.Data, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", p.Data)
	}
	return &p, nil
}

// Validate rejects values the gateway cannot run with.
func (p *Profile) Validate() error {
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}
	switch p.DispatchMode {
	case "auto", "confirm", "manual":
	default:
		return errors.Errorf("invalid dispatch mode %q", p.DispatchMode)
	}
	if p.BackendBaseURL == "" {
		return errors.New("backend base URL must not be empty")
	}
	return nil
}
