package server

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yoyoo-ai/yoyoo/internal/chat"
	"github.com/yoyoo-ai/yoyoo/internal/docstore"
	"github.com/yoyoo-ai/yoyoo/internal/gate"
	"github.com/yoyoo-ai/yoyoo/internal/intent"
	"github.com/yoyoo-ai/yoyoo/internal/model"
	"github.com/yoyoo-ai/yoyoo/internal/profile"
	"github.com/yoyoo-ai/yoyoo/internal/team"
)

// testHarness bundles a server with direct handles on its stores so tests
// can seed gate and chat state.
type testHarness struct {
	server    *Server
	profile   *profile.Profile
	gate      *gate.Gate
	gateDoc   *docstore.Store[model.GateDocument]
	chatStore *chat.Store
}

func newHarness(t *testing.T, backendURL, dispatchMode string) *testHarness {
	t.Helper()
	dir := t.TempDir()

	gateDoc := docstore.New(filepath.Join(dir, "task-gate.json"), model.EmptyGateDocument)
	g := gate.New(gateDoc, gate.DefaultConfig())
	chatStore := chat.NewStore(docstore.New(filepath.Join(dir, "chat-store.json"), model.EmptyChatDocument))
	classifier := intent.NewClassifier(intent.DefaultRules())
	teamClient := team.NewClient(team.Config{
		BaseURL:       backendURL,
		Timeout:       5 * time.Second,
		HealthTimeout: time.Second,
	})

	p := &profile.Profile{
		Port:                3000,
		Data:                dir,
		DispatchMode:        dispatchMode,
		PollInterval:        time.Second,
		PollTimeout:         5 * time.Second,
		InitialReportWindow: 18 * time.Second,
		BackendBaseURL:      backendURL,
	}

	return &testHarness{
		server:    New(p, g, chatStore, classifier, teamClient),
		profile:   p,
		gate:      g,
		gateDoc:   gateDoc,
		chatStore: chatStore,
	}
}

// serve routes one request through the full middleware chain and returns
// the recorded response.
func (h *testHarness) serve(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.server.Echo().ServeHTTP(rec, req)
	return rec
}
