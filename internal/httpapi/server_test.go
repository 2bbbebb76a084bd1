package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/proctor/internal/audio"
	"github.com/ent0n29/proctor/internal/auth"
	"github.com/ent0n29/proctor/internal/capture"
	"github.com/ent0n29/proctor/internal/config"
	"github.com/ent0n29/proctor/internal/detection"
	"github.com/ent0n29/proctor/internal/identity"
	"github.com/ent0n29/proctor/internal/logging"
	"github.com/ent0n29/proctor/internal/observability"
	"github.com/ent0n29/proctor/internal/protocol"
	"github.com/ent0n29/proctor/internal/seat"
	"github.com/ent0n29/proctor/internal/session"
	"github.com/ent0n29/proctor/internal/store"
)

type testEnv struct {
	ts     *httptest.Server
	store  *store.InMemoryStore
	source *detection.ScriptedSource
	device *capture.MockDevice
}

func testConfig() config.Config {
	return config.Config{AuthRateLimit: 1000, AuthRateBurst: 1000}
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	st := store.NewInMemoryStore()
	src := detection.NewScriptedSource()
	dev := capture.NewMockDevice()
	metrics := observability.NewMetrics("test", nil)
	logger := logging.Discard()

	lcCfg := session.Config{
		DetectionInterval:   5 * time.Millisecond,
		ElapsedInterval:     5 * time.Millisecond,
		MovementAdvisoryTTL: time.Hour,
		DeviceAdvisoryTTL:   time.Hour,
	}
	claims := identity.NewClaims()
	seats := seat.NewRegistry(func() *session.Lifecycle {
		return session.NewLifecycle(lcCfg, session.Deps{
			Store:   st,
			Source:  src,
			Device:  dev,
			Logger:  logger,
			Metrics: metrics,
			Claims:  claims,
		})
	}, time.Hour)
	attempts := auth.NewAttempts(auth.Options{
		Finder:  st,
		Matcher: auth.FixedMatcher(true),
		Logger:  logger,
		Metrics: metrics,
	}, time.Hour)

	srv := New(cfg, Deps{
		Store:     st,
		Registrar: auth.NewRegistrar(st, nil, logger),
		Attempts:  attempts,
		Seats:     seats,
		Metrics:   metrics,
		Logger:    logger,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = seats.Close(context.Background())
		srv.Close()
	})
	return &testEnv{ts: ts, store: st, source: src, device: dev}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func sampleBase64(d time.Duration) string {
	wav := audio.EncodeWAVPCM16LE(audio.Silence(d, audio.DefaultSampleRate), audio.DefaultSampleRate)
	return base64.StdEncoding.EncodeToString(wav)
}

func (e *testEnv) register(t *testing.T, name string) {
	t.Helper()
	res, body := e.do(t, http.MethodPost, "/v1/students", "", map[string]string{
		"name":          name,
		"email":         strings.ToLower(name) + "@example.com",
		"sample_base64": sampleBase64(2 * time.Second),
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body = %+v", res.StatusCode, body)
	}
}

// signIn walks a full challenge and returns the seat token.
func (e *testEnv) signIn(t *testing.T, name string) string {
	t.Helper()
	res, body := e.do(t, http.MethodPost, "/v1/auth/attempts", "", nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("begin attempt status = %d", res.StatusCode)
	}
	id, _ := body["attempt_id"].(string)
	if id == "" {
		t.Fatalf("missing attempt_id: %+v", body)
	}

	res, body = e.do(t, http.MethodPost, "/v1/auth/attempts/"+id+"/identity", "", map[string]string{"name": name})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("identity status = %d, body = %+v", res.StatusCode, body)
	}
	state, _ := body["state"].(map[string]any)
	if state["phase"] != string(auth.PhaseAwaitingResponse) || state["prompt"] == "" {
		t.Fatalf("unexpected state after identity: %+v", state)
	}

	res, body = e.do(t, http.MethodPost, "/v1/auth/attempts/"+id+"/response", "", map[string]string{
		"sample_base64": sampleBase64(time.Second),
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("response status = %d, body = %+v", res.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("missing token: %+v", body)
	}

	res, _ = e.do(t, http.MethodGet, "/v1/auth/attempts/"+id, "", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("granted attempt still reachable, status = %d", res.StatusCode)
	}
	return token
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, testConfig())

	res, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	if res.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %+v", res.StatusCode, body)
	}
	res, body = env.do(t, http.MethodGet, "/readyz", "", nil)
	if res.StatusCode != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("readyz = %d %+v", res.StatusCode, body)
	}

	metricsRes, err := http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer metricsRes.Body.Close()
	if metricsRes.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", metricsRes.StatusCode)
	}
}

func TestMonitoringFlow(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.register(t, "Alice")
	token := env.signIn(t, "alice")

	res, body := env.do(t, http.MethodPost, "/v1/monitoring/start", token, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d, body = %+v", res.StatusCode, body)
	}
	if body["status"] != string(store.StatusActive) || body["trust_score"] != float64(100) {
		t.Fatalf("unexpected started session: %+v", body)
	}

	res, body = env.do(t, http.MethodPost, "/v1/monitoring/start", token, nil)
	if res.StatusCode != http.StatusConflict || body["code"] != "session_conflict" {
		t.Fatalf("second start = %d %+v, want 409 session_conflict", res.StatusCode, body)
	}

	for range 3 {
		env.source.Inject(detection.KindHeadMovement)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, snap := env.do(t, http.MethodGet, "/v1/monitoring", token, nil)
		sess, _ := snap["session"].(map[string]any)
		if sess["head_movement_count"] == float64(3) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("head movements never reached 3: %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}

	res, body = env.do(t, http.MethodPost, "/v1/monitoring/stop", token, nil)
	if res.StatusCode != http.StatusOK || body["stopped"] != true {
		t.Fatalf("stop = %d %+v", res.StatusCode, body)
	}
	final, _ := body["session"].(map[string]any)
	if final["trust_score"] != float64(85) || final["status"] != string(store.StatusCompleted) {
		t.Fatalf("unexpected final session: %+v", final)
	}
	if env.device.OpenStreams() != 0 {
		t.Fatalf("camera still open after stop")
	}

	res, body = env.do(t, http.MethodGet, "/v1/sessions?status=completed&q=ALI", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list sessions status = %d", res.StatusCode)
	}
	if sessions, _ := body["sessions"].([]any); len(sessions) != 1 {
		t.Fatalf("sessions = %+v, want one completed", body["sessions"])
	}

	_, body = env.do(t, http.MethodGet, "/v1/reports/summary", "", nil)
	summary, _ := body["summary"].(map[string]any)
	if summary["total_sessions"] != float64(1) || summary["average_trust_score"] != float64(85) {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	res, body = env.do(t, http.MethodPost, "/v1/logout", token, nil)
	if res.StatusCode != http.StatusOK || body["stopped"] != false {
		t.Fatalf("logout = %d %+v", res.StatusCode, body)
	}
	res, body = env.do(t, http.MethodGet, "/v1/monitoring", token, nil)
	if res.StatusCode != http.StatusUnauthorized || body["code"] != "invalid_token" {
		t.Fatalf("after logout = %d %+v, want 401 invalid_token", res.StatusCode, body)
	}
}

func TestLogoutStopsActiveSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.register(t, "Bob")
	token := env.signIn(t, "Bob")

	if res, _ := env.do(t, http.MethodPost, "/v1/monitoring/start", token, nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d", res.StatusCode)
	}
	res, body := env.do(t, http.MethodPost, "/v1/logout", token, nil)
	if res.StatusCode != http.StatusOK || body["stopped"] != true {
		t.Fatalf("logout = %d %+v", res.StatusCode, body)
	}

	sessions, err := env.store.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].EndTime == nil || sessions[0].Status != store.StatusCompleted {
		t.Fatalf("unexpected persisted sessions: %+v", sessions)
	}
}

func TestSameStudentSignedInTwiceGetsOneSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.register(t, "Alice")
	first := env.signIn(t, "Alice")
	second := env.signIn(t, "alice")

	if res, body := env.do(t, http.MethodPost, "/v1/monitoring/start", first, nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("first start = %d %+v", res.StatusCode, body)
	}
	res, body := env.do(t, http.MethodPost, "/v1/monitoring/start", second, nil)
	if res.StatusCode != http.StatusConflict || body["code"] != "session_conflict" {
		t.Fatalf("second start = %d %+v, want 409 session_conflict", res.StatusCode, body)
	}

	sessions, err := env.store.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != store.StatusActive {
		t.Fatalf("sessions = %+v, want one active", sessions)
	}

	if res, _ := env.do(t, http.MethodPost, "/v1/monitoring/stop", first, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("stop = %d", res.StatusCode)
	}
	if res, body := env.do(t, http.MethodPost, "/v1/monitoring/start", second, nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("start after stop = %d %+v", res.StatusCode, body)
	}
}

func TestUnknownIdentityIsDenied(t *testing.T) {
	env := newTestEnv(t, testConfig())
	_, body := env.do(t, http.MethodPost, "/v1/auth/attempts", "", nil)
	id, _ := body["attempt_id"].(string)

	res, body := env.do(t, http.MethodPost, "/v1/auth/attempts/"+id+"/identity", "", map[string]string{"name": "nobody"})
	if res.StatusCode != http.StatusNotFound || body["code"] != "identity_not_found" {
		t.Fatalf("identity = %d %+v, want 404 identity_not_found", res.StatusCode, body)
	}
	state, _ := body["state"].(map[string]any)
	if state["phase"] != string(auth.PhaseDenied) {
		t.Fatalf("phase = %v, want denied", state["phase"])
	}

	res, body = env.do(t, http.MethodPost, "/v1/auth/attempts/"+id+"/response", "", nil)
	if res.StatusCode != http.StatusConflict || body["code"] != "invalid_phase" {
		t.Fatalf("response in denied = %d %+v, want 409 invalid_phase", res.StatusCode, body)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, testConfig())

	res, body := env.do(t, http.MethodPost, "/v1/students", "", map[string]string{
		"name":          "Carol",
		"email":         "carol@example.com",
		"sample_base64": sampleBase64(200 * time.Millisecond),
	})
	if res.StatusCode != http.StatusUnprocessableEntity || body["code"] != "invalid_registration" {
		t.Fatalf("short sample = %d %+v, want 422", res.StatusCode, body)
	}

	res, body = env.do(t, http.MethodPost, "/v1/students", "", map[string]string{
		"name":          "Carol",
		"email":         "carol@example.com",
		"sample_base64": "%%%",
	})
	if res.StatusCode != http.StatusBadRequest || body["code"] != "invalid_sample" {
		t.Fatalf("bad base64 = %d %+v, want 400", res.StatusCode, body)
	}

	env.register(t, "Carol")
	res, body = env.do(t, http.MethodPost, "/v1/students", "", map[string]string{
		"name":          "carol",
		"email":         "other@example.com",
		"sample_base64": sampleBase64(2 * time.Second),
	})
	if res.StatusCode != http.StatusConflict || body["code"] != "duplicate_identity" {
		t.Fatalf("duplicate = %d %+v, want 409", res.StatusCode, body)
	}

	res, body = env.do(t, http.MethodGet, "/v1/enrollment/prompt", "", nil)
	prompt, _ := body["prompt"].(string)
	if res.StatusCode != http.StatusOK || !auth.NewPromptPool(auth.RegistrationPrompts, 1).Contains(prompt) {
		t.Fatalf("enrollment prompt = %d %+v", res.StatusCode, body)
	}
}

func TestMonitoringRequiresToken(t *testing.T) {
	env := newTestEnv(t, testConfig())

	res, body := env.do(t, http.MethodPost, "/v1/monitoring/start", "", nil)
	if res.StatusCode != http.StatusUnauthorized || body["code"] != "missing_token" {
		t.Fatalf("no token = %d %+v", res.StatusCode, body)
	}
	res, body = env.do(t, http.MethodPost, "/v1/monitoring/start", "not-a-token", nil)
	if res.StatusCode != http.StatusUnauthorized || body["code"] != "invalid_token" {
		t.Fatalf("bad token = %d %+v", res.StatusCode, body)
	}
}

func TestAuthRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRateLimit = 0.01
	cfg.AuthRateBurst = 1
	env := newTestEnv(t, cfg)

	if res, _ := env.do(t, http.MethodPost, "/v1/auth/attempts", "", nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("first attempt status = %d", res.StatusCode)
	}
	res, body := env.do(t, http.MethodPost, "/v1/auth/attempts", "", nil)
	if res.StatusCode != http.StatusTooManyRequests || body["code"] != "rate_limit_exceeded" {
		t.Fatalf("second attempt = %d %+v, want 429", res.StatusCode, body)
	}
	if res.Header.Get("Retry-After") != "100" {
		t.Fatalf("Retry-After = %q, want 100", res.Header.Get("Retry-After"))
	}
	// Other routes are not throttled.
	if res, _ := env.do(t, http.MethodGet, "/v1/students", "", nil); res.StatusCode != http.StatusOK {
		t.Fatalf("list students status = %d", res.StatusCode)
	}
}

func TestListSessionsRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t, testConfig())
	res, body := env.do(t, http.MethodGet, "/v1/sessions?status=paused", "", nil)
	if res.StatusCode != http.StatusBadRequest || body["code"] != "invalid_status" {
		t.Fatalf("status filter = %d %+v", res.StatusCode, body)
	}
}

func TestMonitoringWebsocket(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.register(t, "Dana")
	token := env.signIn(t, "Dana")

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/monitoring/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	if res, _ := env.do(t, http.MethodPost, "/v1/monitoring/start", token, nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d", res.StatusCode)
	}

	readUntil := func(want protocol.MessageType) map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("waiting for %s: %v", want, err)
			}
			if msg["type"] == string(want) {
				return msg
			}
		}
	}

	snap := readUntil(protocol.TypeSessionSnapshot)
	if snap["active"] != true || snap["student_name"] != "Dana" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	env.source.Inject(detection.KindDeviceDetection)
	raised := readUntil(protocol.TypeAdvisoryRaised)
	advisory, _ := raised["advisory"].(map[string]any)
	if advisory["kind"] != string(session.AdvisoryProhibitedDevice) {
		t.Fatalf("unexpected advisory: %+v", raised)
	}

	if err := conn.WriteJSON(protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ActionStop}); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	ended := readUntil(protocol.TypeSessionEnded)
	if ended["status"] != string(store.StatusCompleted) || ended["trust_score"] != float64(85) {
		t.Fatalf("unexpected session_ended: %+v", ended)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"wat"}`)); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	errEvent := readUntil(protocol.TypeErrorEvent)
	if errEvent["code"] != "invalid_client_message" {
		t.Fatalf("unexpected error event: %+v", errEvent)
	}
}
