package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gdogen/internal/build"
	"github.com/nerrad567/gdogen/internal/codegen"
	"github.com/nerrad567/gdogen/internal/infrastructure/config"
	"github.com/nerrad567/gdogen/internal/infrastructure/logging"
)

const garageYAML = `
secplus_gdo:
  id: gdo1
  input_gdo_pin: GPIO16
  output_gdo_pin: GPIO17

text_sensor:
  - platform: secplus_gdo
    id: batt1
    type: battery
    secplus_gdo_id: gdo1
`

// testServer creates a Server whose hub runs until the test ends.
func testServer(t *testing.T) *Server {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	srv, err := New(Deps{
		Config: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.ServerTimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
			WebSocket: config.WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logger:   log,
		Function: "setup_secplus_gdo",
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) Error {
	t.Helper()
	var e Error
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	return e
}

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.Default()

	if _, err := New(Deps{Function: "setup"}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without function should fail")
	}
}

func TestStart_ServesAndCloses(t *testing.T) {
	srv := testServer(t)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()

	srv := testServer(t)
	srv.cfg.Port = ln.Addr().(*net.TCPAddr).Port

	if err := srv.Start(context.Background()); err == nil {
		srv.Close()
		t.Fatal("Start() on a busy port should fail")
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health body = %v", body)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "abc-123")
	}
}

func TestListTypes(t *testing.T) {
	srv := testServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/types", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Platforms []PlatformTypes `json:"platforms"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Platforms) != 3 {
		t.Fatalf("got %d platforms, want 3", len(body.Platforms))
	}

	text := body.Platforms[0]
	if text.Platform != "text_sensor" || text.Class != "esphome::secplus_gdo::GDOTextSensor" {
		t.Errorf("first platform = %+v", text)
	}
	if len(text.Types) != 1 || text.Types[0] != (TypeInfo{Type: "battery", Method: "register_battery"}) {
		t.Errorf("text_sensor types = %+v", text.Types)
	}
}

func TestGetPlatformTypes(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name       string
		platform   string
		wantStatus int
	}{
		{"binary sensor", "binary_sensor", http.StatusOK},
		{"sensor", "sensor", http.StatusOK},
		{"unknown", "cover", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/api/v1/types/"+tt.platform, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestGenerate_JSON(t *testing.T) {
	srv := testServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/generate?source=devices/garage.yaml", garageYAML)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp GenerateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	if resp.Source != "devices/garage.yaml" {
		t.Errorf("Source = %q, want %q", resp.Source, "devices/garage.yaml")
	}
	if len(resp.Units) != 2 || resp.Units[0] != "secplus_gdo" || resp.Units[1] != "text_sensor[0]" {
		t.Errorf("Units = %v", resp.Units)
	}
	if !strings.Contains(resp.Code, "// Source: devices/garage.yaml") {
		t.Errorf("code missing source line:\n%s", resp.Code)
	}
	if !strings.Contains(resp.Code, "gdo1->register_battery(std::bind(&esphome::secplus_gdo::GDOTextSensor::publish_state, batt1, std::placeholders::_1));") {
		t.Errorf("code missing binding:\n%s", resp.Code)
	}
}

func TestGenerate_Text(t *testing.T) {
	srv := testServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/generate?format=text", garageYAML)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/x-c++src") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), codegen.GeneratedHeader) {
		t.Errorf("body does not start with generated header:\n%s", rec.Body.String())
	}
}

func TestGenerate_Errors(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKind   string
		wantPath   string
	}{
		{
			name:       "unknown type",
			body:       strings.Replace(garageYAML, "battery", "humidity", 1),
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   KindSchema,
			wantPath:   "text_sensor[0].type",
		},
		{
			name:       "undeclared parent",
			body:       strings.Replace(garageYAML, "secplus_gdo_id: gdo1", "secplus_gdo_id: gdo_missing", 1),
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   KindReference,
			wantPath:   "text_sensor[0].secplus_gdo_id",
		},
		{
			name:       "invalid yaml",
			body:       "secplus_gdo: [unclosed",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/v1/generate", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}

			e := decodeError(t, rec)
			if tt.wantKind == "" {
				return
			}
			if e.Code != ErrCodeValidation {
				t.Errorf("Code = %q, want %q", e.Code, ErrCodeValidation)
			}
			if len(e.Problems) != 1 {
				t.Fatalf("Problems = %+v, want 1", e.Problems)
			}
			if e.Problems[0].Kind != tt.wantKind || e.Problems[0].Path != tt.wantPath {
				t.Errorf("problem = %+v, want kind %q path %q", e.Problems[0], tt.wantKind, tt.wantPath)
			}
			if e.Problems[0].Line == 0 {
				t.Errorf("problem = %+v, want a line", e.Problems[0])
			}
		})
	}
}

func TestGenerate_SourceWithControlCharacters(t *testing.T) {
	srv := testServer(t)

	target := "/api/v1/generate?source=" + url.QueryEscape("x.yaml\n#include \"other.h\"")
	rec := do(t, srv, http.MethodPost, target, garageYAML)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}

	e := decodeError(t, rec)
	if len(e.Problems) != 1 || e.Problems[0].Kind != KindSchema || e.Problems[0].Path != "source" {
		t.Errorf("Problems = %+v, want one schema problem at source", e.Problems)
	}
}

func TestGenerate_TooLarge(t *testing.T) {
	srv := testServer(t)

	body := garageYAML + "# " + strings.Repeat("x", maxRequestBodySize) + "\n"
	rec := do(t, srv, http.MethodPost, "/api/v1/generate", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestValidate(t *testing.T) {
	srv := testServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/validate", garageYAML)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp GenerateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Code != "" {
		t.Error("validate should not return code")
	}
	if len(resp.Units) != 2 {
		t.Errorf("Units = %v, want 2", resp.Units)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/generate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestProblemsFrom(t *testing.T) {
	err := codegen.Errors{
		&codegen.SchemaError{Path: "sensor[0].type", Value: "x", Accepted: []string{"openings"}, Line: 4},
		&codegen.IdentifierCollisionError{ID: "a", First: "sensor[0]", Path: "sensor[1]", Line: 9},
		errors.New("plain"),
	}

	problems := problemsFrom(err)
	if len(problems) != 3 {
		t.Fatalf("problemsFrom() = %+v, want 3", problems)
	}
	if problems[0].Kind != KindSchema || problems[0].Line != 4 {
		t.Errorf("problems[0] = %+v", problems[0])
	}
	if problems[1].Kind != KindCollision || problems[1].Path != "sensor[1]" || problems[1].Line != 9 {
		t.Errorf("problems[1] = %+v", problems[1])
	}
	if problems[2].Kind != KindOther {
		t.Errorf("problems[2] = %+v", problems[2])
	}
}

func TestWebSocket_BuildEvents(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	defer ws.Close()

	if err := ws.WriteJSON(Message{
		Type:     MsgSubscribe,
		ID:       "sub-1",
		Channels: []string{ChannelBuildFailed, ChannelBuildCompleted},
	}); err != nil {
		t.Fatalf("write subscribe message: %v", err)
	}

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ack Message
	if err := ws.ReadJSON(&ack); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if ack.Type != MsgAck || ack.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", ack)
	}
	if len(ack.Channels) != 2 || ack.Channels[0] != ChannelBuildCompleted || ack.Channels[1] != ChannelBuildFailed {
		t.Errorf("ack channels = %v, want sorted subscriptions", ack.Channels)
	}

	srv.PublishBuild(build.Result{Artifacts: 2, Written: 1})

	var event Message
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != MsgEvent || event.Channel != ChannelBuildCompleted {
		t.Errorf("event = %+v", event)
	}
	payload, ok := event.Payload.(map[string]any)
	if !ok || payload["artifacts"] != float64(2) || payload["written"] != float64(1) {
		t.Errorf("payload = %v", event.Payload)
	}

	srv.PublishBuild(build.Result{Err: &codegen.SchemaError{Path: "text_sensor[0].type", Value: "humidity", Accepted: []string{"battery"}}})

	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read failure event: %v", err)
	}
	if event.Channel != ChannelBuildFailed {
		t.Errorf("Channel = %q, want %q", event.Channel, ChannelBuildFailed)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(Message{Type: MsgPing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg Message
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if msg.Type != MsgPong || msg.ID != "p1" {
		t.Errorf("pong = %+v", msg)
	}
}

func TestWebSocket_UnknownChannel(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(Message{Type: MsgSubscribe, ID: "s1", Channels: []string{"device.state"}}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg Message
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if msg.Type != MsgError || msg.ID != "s1" {
		t.Errorf("reply = %+v, want error", msg)
	}
}
