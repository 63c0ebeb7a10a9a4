package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"quill/internal/folderstore"
	"quill/internal/identity"
	"quill/internal/notestore"
	"quill/internal/remote"
	"quill/internal/settings"
)

const (
	testUserID = "user-123"
	testToken  = "valid-token"
)

type sessionStub struct {
	userID string
}

func (s *sessionStub) ValidateToken(token string) (identity.SessionClaims, error) {
	if token != testToken {
		return identity.SessionClaims{}, identity.ErrInvalidToken
	}
	return identity.SessionClaims{UserID: s.userID}, nil
}

func (s *sessionStub) SignIn(token string) (identity.SessionClaims, error) {
	return s.ValidateToken(token)
}

func (s *sessionStub) SignOut() {}

func (s *sessionStub) CurrentUserID() (string, bool) {
	return s.userID, s.userID != ""
}

type chatStub struct {
	reply string
	err   error
}

func (c *chatStub) Chat(_ context.Context, _ string) (string, error) {
	return c.reply, c.err
}

type aiStub struct {
	transcript string
	summary    string
	title      string
	tags       []string
	refined    string
	err        error
}

func (a *aiStub) TranscribeAudio(context.Context, string, string) (string, error) {
	return a.transcript, a.err
}

func (a *aiStub) TranscribeImage(context.Context, string, string) (string, error) {
	return a.transcript, a.err
}

func (a *aiStub) GenerateSummary(context.Context, string, string) (string, error) {
	return a.summary, a.err
}

func (a *aiStub) GenerateTitle(context.Context, string) (string, error) {
	return a.title, a.err
}

func (a *aiStub) GenerateTags(context.Context, string, string) ([]string, error) {
	return a.tags, a.err
}

func (a *aiStub) RefineSummary(context.Context, string, string) (string, error) {
	return a.refined, a.err
}

type testEnv struct {
	server *httptest.Server
	notes  *notestore.Store
}

func newTestEnv(t *testing.T, ai notestore.AIClient, chat ChatClient) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&remote.StoredDocument{}, &settings.Record{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	remoteSvc, err := remote.NewSQLiteService(remote.SQLiteConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct remote service: %v", err)
	}

	session := &sessionStub{userID: testUserID}
	noteStore, err := notestore.NewStore(notestore.StoreConfig{
		Remote:     remoteSvc,
		Identity:   session,
		IDProvider: notestore.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct note store: %v", err)
	}
	folderStore, err := folderstore.NewStore(folderstore.StoreConfig{
		Remote:     remoteSvc,
		Identity:   session,
		IDProvider: notestore.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct folder store: %v", err)
	}

	var processor *notestore.Processor
	if ai != nil {
		processor, err = notestore.NewProcessor(notestore.ProcessorConfig{Store: noteStore, AI: ai})
		if err != nil {
			t.Fatalf("failed to construct processor: %v", err)
		}
	}

	repo, err := settings.NewSQLiteRepository(db, nil)
	if err != nil {
		t.Fatalf("failed to construct settings repository: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Session:   session,
		Notes:     noteStore,
		Folders:   folderStore,
		Processor: processor,
		Chat:      chat,
		Settings:  repo,
		Realtime:  NewRealtimeDispatcher(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	t.Cleanup(noteStore.WaitForWrites)
	return &testEnv{server: server, notes: noteStore}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	raw, err := io.ReadAll(response.Body)
	_ = response.Body.Close()
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return response, raw
}

func decodeJSON(t *testing.T, raw []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("failed to decode response %s: %v", raw, err)
	}
}

func (e *testEnv) createNote(t *testing.T, noteType string, set map[string]any) string {
	t.Helper()
	response, raw := e.do(t, http.MethodPost, "/notes", map[string]any{"type": noteType, "set": set})
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d: %s", response.StatusCode, raw)
	}
	var payload struct {
		Note struct {
			ID string `json:"id"`
		} `json:"note"`
	}
	decodeJSON(t, raw, &payload)
	if payload.Note.ID == "" {
		t.Fatalf("create response missing note id: %s", raw)
	}
	return payload.Note.ID
}

func TestRequestsWithoutBearerTokenRejected(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	request, err := http.NewRequest(http.MethodGet, env.server.URL+"/notes", nil)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", response.StatusCode)
	}
}

func TestRequestsWithInvalidTokenRejected(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	request, err := http.NewRequest(http.MethodGet, env.server.URL+"/notes", nil)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Authorization", "Bearer bogus")
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", response.StatusCode)
	}
}

func TestSignInEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	response, raw := postJSON(t, env.server.URL+"/auth/session", map[string]any{"token": testToken})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.StatusCode, raw)
	}
	var payload struct {
		UserID string `json:"user_id"`
	}
	decodeJSON(t, raw, &payload)
	if payload.UserID != testUserID {
		t.Fatalf("unexpected user id %q", payload.UserID)
	}

	response, _ = postJSON(t, env.server.URL+"/auth/session", map[string]any{"token": "bogus"})
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", response.StatusCode)
	}

	response, _ = postJSON(t, env.server.URL+"/auth/session", map[string]any{})
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing token, got %d", response.StatusCode)
	}
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	response, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	raw, err := io.ReadAll(response.Body)
	_ = response.Body.Close()
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return response, raw
}

func TestChatEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, &chatStub{reply: "hello back"})

	response, raw := env.do(t, http.MethodPost, "/chat", map[string]any{"message": "hello"})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.StatusCode, raw)
	}
	var payload struct {
		Reply string `json:"reply"`
	}
	decodeJSON(t, raw, &payload)
	if payload.Reply != "hello back" {
		t.Fatalf("unexpected reply %q", payload.Reply)
	}
}

func TestChatEndpointFailure(t *testing.T) {
	env := newTestEnv(t, nil, &chatStub{err: errors.New("backend down")})
	response, _ := env.do(t, http.MethodPost, "/chat", map[string]any{"message": "hello"})
	if response.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", response.StatusCode)
	}
}

func TestSettingsLifecycle(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	response, _ := env.do(t, http.MethodPut, "/settings/theme", map[string]any{"value": "dark"})
	if response.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", response.StatusCode)
	}

	response, raw := env.do(t, http.MethodGet, "/settings", nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
	var payload struct {
		Settings map[string]string `json:"settings"`
	}
	decodeJSON(t, raw, &payload)
	if payload.Settings["theme"] != "dark" {
		t.Fatalf("unexpected settings %#v", payload.Settings)
	}

	response, _ = env.do(t, http.MethodDelete, "/settings/theme", nil)
	if response.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", response.StatusCode)
	}

	_, raw = env.do(t, http.MethodGet, "/settings", nil)
	decodeJSON(t, raw, &payload)
	if _, ok := payload.Settings["theme"]; ok {
		t.Fatalf("cleared setting must be absent: %#v", payload.Settings)
	}
}

func mustContain(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in:\n%s", needle, haystack)
	}
}
