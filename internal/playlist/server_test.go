package playlist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squonk-radio/internal/coordinator"
	"squonk-radio/internal/queue"
	"squonk-radio/internal/registry"
	"squonk-radio/internal/store"
)

type brokenSaveStore struct {
	*store.MemoryStore
}

func (s *brokenSaveStore) Save(_ context.Context, groupKey string, _ queue.Playlist) error {
	return &store.PersistenceError{Op: "save", GroupKey: groupKey, Err: errors.New("read-only file system")}
}

func setupTestServer(t *testing.T, st store.Store, opts ...Option) (*httptest.Server, *coordinator.Coordinator) {
	t.Helper()
	c := coordinator.New(st, coordinator.WithCapacity(3))
	s := NewServer(c, registry.New(c), opts...)
	server := httptest.NewServer(s.Router())
	t.Cleanup(server.Close)
	return server, c
}

func do(t *testing.T, method, url, body string, header http.Header) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func trackIDs(t *testing.T, body map[string]any) []string {
	t.Helper()
	raw, ok := body["tracks"].([]any)
	require.True(t, ok, "tracks missing in %v", body)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, v.(map[string]any)["id"].(string))
	}
	return out
}

func TestHealth(t *testing.T) {
	server, _ := setupTestServer(t, store.NewMemoryStore())
	code, body := do(t, http.MethodGet, server.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestPlaylistFlow(t *testing.T) {
	server, _ := setupTestServer(t, store.NewMemoryStore())
	g := server.URL + "/groups/G1"

	code, body := do(t, http.MethodPost, g, "", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "G1", body["groupKey"])
	assert.Empty(t, trackIDs(t, body))

	code, _ = do(t, http.MethodPost, g+"/tracks", `{"id":"a","title":"T1","artist":"A1"}`, nil)
	require.Equal(t, http.StatusCreated, code)
	code, body = do(t, http.MethodPost, g+"/tracks", `{"tracks":[{"id":"b","title":"T2","artist":"A2"},{"id":"c"}]}`, nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, []string{"a", "b", "c"}, trackIDs(t, body))

	code, body = do(t, http.MethodGet, g+"/current", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "T1 - A1", body["caption"])

	code, body = do(t, http.MethodPost, g+"/next", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "T2 - A2", body["caption"])

	code, body = do(t, http.MethodGet, g, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"b", "c", "a"}, trackIDs(t, body))
	assert.EqualValues(t, 3, body["length"])

	code, body = do(t, http.MethodPatch, g+"/tracks/a", `{"newPosition":0}`, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["from"])
	assert.EqualValues(t, 0, body["to"])
	assert.Equal(t, []string{"a", "b", "c"}, trackIDs(t, body))

	code, body = do(t, http.MethodDelete, g+"/tracks/c", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"a", "b"}, trackIDs(t, body))

	code, body = do(t, http.MethodGet, server.URL+"/groups", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"G1"}, body["groups"])

	// Registering again resets the playlist.
	code, _ = do(t, http.MethodPost, g, "", nil)
	require.Equal(t, http.StatusCreated, code)
	code, body = do(t, http.MethodGet, g+"/current", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "queue is empty", body["error"])
}

func TestErrorStatuses(t *testing.T) {
	server, _ := setupTestServer(t, store.NewMemoryStore())
	g := server.URL + "/groups/G1"

	code, body := do(t, http.MethodPost, g+"/tracks", `{"id":"a"}`, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "group not registered", body["error"])

	code, _ = do(t, http.MethodGet, g, "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	do(t, http.MethodPost, g, "", nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad json", http.MethodPost, "/tracks", `{`, http.StatusBadRequest},
		{"missing id", http.MethodPost, "/tracks", `{"title":"T"}`, http.StatusBadRequest},
		{"title too long", http.MethodPost, "/tracks", `{"id":"x","title":"` + strings.Repeat("t", 301) + `"}`, http.StatusBadRequest},
		{"artist too long", http.MethodPost, "/tracks", `{"id":"x","artist":"` + strings.Repeat("a", 201) + `"}`, http.StatusBadRequest},
		{"bad batch entry", http.MethodPost, "/tracks", `{"tracks":[{"id":"x"},{"id":" "}]}`, http.StatusBadRequest},
		{"move missing position", http.MethodPatch, "/tracks/a", `{}`, http.StatusBadRequest},
		{"move negative", http.MethodPatch, "/tracks/a", `{"newPosition":-1}`, http.StatusBadRequest},
		{"move unknown track", http.MethodPatch, "/tracks/zzz", `{"newPosition":0}`, http.StatusNotFound},
		{"remove unknown track", http.MethodDelete, "/tracks/zzz", "", http.StatusNotFound},
		{"next on empty", http.MethodPost, "/next", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, tt.method, g+tt.path, tt.body, nil)
			assert.Equal(t, tt.want, code)
			assert.NotEmpty(t, body["error"])
		})
	}

	code, _ = do(t, http.MethodPost, g+"/tracks", `{"tracks":[{"id":"a"},{"id":"b"},{"id":"c"}]}`, nil)
	require.Equal(t, http.StatusCreated, code)
	code, body = do(t, http.MethodPost, g+"/tracks", `{"id":"d"}`, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "queue is full", body["error"])
}

func TestPersistenceFailureIs503(t *testing.T) {
	server, c := setupTestServer(t, &brokenSaveStore{MemoryStore: store.NewMemoryStore()})
	require.NoError(t, c.RegisterGroup(context.Background(), "G1"))

	code, body := do(t, http.MethodPost, server.URL+"/groups/G1/tracks", `{"id":"a"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "storage unavailable", body["error"])

	code, body = do(t, http.MethodGet, server.URL+"/groups/G1", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, trackIDs(t, body))
}

func TestSetupSession(t *testing.T) {
	server, c := setupTestServer(t, store.NewMemoryStore())
	alice := http.Header{"X-User-Id": {"alice"}}
	bob := http.Header{"X-User-Id": {"bob"}}

	code, _ := do(t, http.MethodPost, server.URL+"/setup", `{"groupKey":"G1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := do(t, http.MethodPost, server.URL+"/setup/tracks", `{"id":"a"}`, alice)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no active setup session", body["error"])

	code, body = do(t, http.MethodPost, server.URL+"/setup", `{"groupKey":"G1"}`, alice)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "G1", body["groupKey"])
	code, _ = do(t, http.MethodPost, server.URL+"/setup", `{"groupKey":"G2"}`, bob)
	require.Equal(t, http.StatusCreated, code)

	// alice's tracks stay in G1 even though G2 was registered last.
	code, _ = do(t, http.MethodPost, server.URL+"/setup/tracks", `{"id":"a","title":"T1","artist":"A1"}`, alice)
	require.Equal(t, http.StatusCreated, code)

	p, err := c.Playlist(context.Background(), "G1")
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, "a", p[0].ID)
	p, err = c.Playlist(context.Background(), "G2")
	require.NoError(t, err)
	assert.Empty(t, p)

	code, _ = do(t, http.MethodDelete, server.URL+"/setup", "", alice)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = do(t, http.MethodDelete, server.URL+"/setup", "", alice)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, http.MethodPost, server.URL+"/setup", `{"groupKey":" "}`, alice)
	assert.Equal(t, http.StatusBadRequest, code)
}

func uploadRequest(t *testing.T, url, fileID string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileID != "" {
		require.NoError(t, mw.WriteField("fileId", fileID))
	}
	if data != nil {
		fw, err := mw.CreateFormFile("file", "song.mp3")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-Id", "alice")
	return req
}

func TestSetupUpload(t *testing.T) {
	server, c := setupTestServer(t, store.NewMemoryStore())
	alice := http.Header{"X-User-Id": {"alice"}}

	resp, err := http.DefaultClient.Do(uploadRequest(t, server.URL+"/setup/uploads", "f1", []byte("no tags")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	code, _ := do(t, http.MethodPost, server.URL+"/setup", `{"groupKey":"G1"}`, alice)
	require.Equal(t, http.StatusCreated, code)

	resp, err = http.DefaultClient.Do(uploadRequest(t, server.URL+"/setup/uploads", "f1", []byte("no tags")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Unknown - Unknown", body["caption"])
	assert.EqualValues(t, 1, body["length"])

	cur, err := c.GetCurrent(context.Background(), "G1")
	require.NoError(t, err)
	assert.Equal(t, "f1", cur.ID)

	resp2, err := http.DefaultClient.Do(uploadRequest(t, server.URL+"/setup/uploads", "", []byte("x")))
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	resp3, err := http.DefaultClient.Do(uploadRequest(t, server.URL+"/setup/uploads", "f2", nil))
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func makeTestAccessToken(t *testing.T, secret []byte, userID string) string {
	t.Helper()
	claims := &TokenClaims{
		UserID:    userID,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestJWTAuth(t *testing.T) {
	secret := []byte("test-secret")
	server, c := setupTestServer(t, store.NewMemoryStore(), WithJWTSecret(string(secret)))

	code, _ := do(t, http.MethodGet, server.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, code, "health is public")

	code, body := do(t, http.MethodGet, server.URL+"/groups", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing Authorization header", body["error"])

	code, _ = do(t, http.MethodGet, server.URL+"/groups", "", http.Header{"Authorization": {"Token abc"}})
	assert.Equal(t, http.StatusUnauthorized, code)

	wrong := makeTestAccessToken(t, []byte("other"), "alice")
	code, _ = do(t, http.MethodGet, server.URL+"/groups", "", http.Header{"Authorization": {"Bearer " + wrong}})
	assert.Equal(t, http.StatusUnauthorized, code)

	token := makeTestAccessToken(t, secret, "alice")
	auth := http.Header{
		"Authorization": {"Bearer " + token},
		"X-User-Id":     {"mallory"},
	}
	code, _ = do(t, http.MethodPost, server.URL+"/setup", `{"groupKey":"G1"}`, auth)
	require.Equal(t, http.StatusCreated, code)
	code, _ = do(t, http.MethodPost, server.URL+"/setup/tracks", `{"id":"a"}`, auth)
	require.Equal(t, http.StatusCreated, code)

	p, err := c.Playlist(context.Background(), "G1")
	require.NoError(t, err)
	assert.Len(t, p, 1)
}

func TestJWTAuthMiddleware_SetsUserHeader(t *testing.T) {
	secret := []byte("test-secret")
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "user-123", r.Header.Get("X-User-Id"))
		claims, ok := claimsFrom(r.Context())
		require.True(t, ok)
		assert.Equal(t, "user-123", claims.UserID)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/groups", nil)
	req.Header.Set("Authorization", "Bearer "+makeTestAccessToken(t, secret, "user-123"))
	rr := httptest.NewRecorder()
	jwtAuthMiddleware(secret)(next).ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWebsocketMount(t *testing.T) {
	hit := false
	ws := func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusTeapot)
	}
	server, _ := setupTestServer(t, store.NewMemoryStore(), WithWebsocket(ws))

	code, _ := do(t, http.MethodGet, server.URL+"/ws?group=G1", "", nil)
	assert.Equal(t, http.StatusTeapot, code)
	assert.True(t, hit)
}

func TestGroupKeyFromURLIsTrimmed(t *testing.T) {
	server, _ := setupTestServer(t, store.NewMemoryStore())
	g := server.URL + "/groups/%20G1"

	code, body := do(t, http.MethodPost, g, "", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "G1", body["groupKey"])

	code, body = do(t, http.MethodPost, g+"/tracks", `{"id":"a","title":"T1","artist":"A1"}`, nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "G1", body["groupKey"])

	code, body = do(t, http.MethodGet, g, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "G1", body["groupKey"])
	assert.Equal(t, []string{"a"}, trackIDs(t, body))

	code, body = do(t, http.MethodGet, server.URL+"/groups/G1/current", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "T1 - A1", body["caption"])
}

func TestGroupKeyTooLongIs400(t *testing.T) {
	server, _ := setupTestServer(t, store.NewMemoryStore())
	g := server.URL + "/groups/" + strings.Repeat("k", coordinator.MaxGroupKeyLen+1)

	code, body := do(t, http.MethodPost, g, "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, coordinator.ErrInvalidGroupKey.Error(), body["error"])

	code, _ = do(t, http.MethodGet, g, "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
