package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"slotswap/internal/db"
	"slotswap/internal/domain"
	"slotswap/internal/engine"
	"slotswap/internal/migrate"
	"slotswap/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(repo.Repo{DB: conn}, engine.Options{MaxAttempts: 3})
	handler, err := New(Config{
		Engine:      e,
		BasePath:    "/v1",
		Auth:        AuthConfig{JWTSecret: testSecret, DevLogin: true},
		CORSOrigins: []string{"http://app.local"},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

// apiKeyFor registers a party and returns headers carrying a fresh API key.
func apiKeyFor(t *testing.T, srv *testServer, name string) (domain.Party, map[string]string) {
	t.Helper()
	ctx := context.Background()
	p, err := srv.Engine.RegisterParty(ctx, name)
	require.NoError(t, err)
	raw, _, err := srv.Engine.IssueAPIKey(ctx, p.ID, "test")
	require.NoError(t, err)
	return p, map[string]string{"X-Api-Key": raw}
}

func createSlot(t *testing.T, srv *testServer, headers map[string]string, title, status string) SlotResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/slots", map[string]any{
		"title":  title,
		"start":  "2024-03-01T09:00:00Z",
		"end":    "2024-03-01T10:00:00Z",
		"status": status,
	}, headers)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var out SlotResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

func TestSwapAcceptFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	ada, adaH := apiKeyFor(t, srv, "Ada")
	ben, benH := apiKeyFor(t, srv, "Ben")
	mine := createSlot(t, srv, adaH, "Ada standup", "offered")
	theirs := createSlot(t, srv, benH, "Ben review", "offered")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/marketplace", nil, adaH)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var market []MarketplaceSlotResponse
	require.NoError(t, json.Unmarshal(data, &market))
	require.Len(t, market, 1)
	require.Equal(t, theirs.ID, market[0].ID)
	require.Equal(t, "Ben", market[0].OwnerName)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/swap-requests", map[string]any{
		"my_slot_id":    mine.ID,
		"their_slot_id": theirs.ID,
	}, adaH)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created SwapRequestResponse
	require.NoError(t, json.Unmarshal(data, &created))
	require.Equal(t, "pending", created.Status)
	require.Equal(t, ada.ID, created.RequesterID)
	require.Equal(t, ben.ID, created.ResponderID)
	require.Equal(t, "Ben review", created.TheirSlotTitle)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/swap-requests/incoming", nil, benH)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var incoming []SwapRequestResponse
	require.NoError(t, json.Unmarshal(data, &incoming))
	require.Len(t, incoming, 1)
	require.Equal(t, created.ID, incoming[0].ID)

	respondURL := srv.URL + "/v1/swap-requests/" + created.ID + "/respond"
	res, data = doJSON(t, client, http.MethodPost, respondURL, map[string]any{"accept": true}, adaH)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	require.Equal(t, "not_authorized", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodPost, respondURL, map[string]any{"accept": true}, benH)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var accepted SwapRequestResponse
	require.NoError(t, json.Unmarshal(data, &accepted))
	require.Equal(t, "accepted", accepted.Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/slots", nil, adaH)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var adaSlots []SlotResponse
	require.NoError(t, json.Unmarshal(data, &adaSlots))
	require.Len(t, adaSlots, 1)
	require.Equal(t, theirs.ID, adaSlots[0].ID)
	require.Equal(t, "locked", adaSlots[0].Status)

	res, data = doJSON(t, client, http.MethodPost, respondURL, map[string]any{"accept": false}, benH)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	require.Equal(t, "already_actioned", decodeError(t, data).Code)
}

func TestSwapRejectRestoresOffered(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, adaH := apiKeyFor(t, srv, "Ada")
	_, benH := apiKeyFor(t, srv, "Ben")
	mine := createSlot(t, srv, adaH, "mine", "locked")
	theirs := createSlot(t, srv, benH, "theirs", "offered")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/swap-requests", map[string]any{
		"my_slot_id":    mine.ID,
		"their_slot_id": theirs.ID,
	}, adaH)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created SwapRequestResponse
	require.NoError(t, json.Unmarshal(data, &created))

	// Reserved slots are not editable by their owner.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/slots/"+theirs.ID, map[string]any{"title": "renamed"}, benH)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/swap-requests/"+created.ID+"/respond", map[string]any{"accept": false}, benH)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/slots", nil, adaH)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var adaSlots []SlotResponse
	require.NoError(t, json.Unmarshal(data, &adaSlots))
	require.Len(t, adaSlots, 1)
	require.Equal(t, mine.ID, adaSlots[0].ID)
	require.Equal(t, "offered", adaSlots[0].Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/swap-requests/outgoing", nil, adaH)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var outgoing []SwapRequestResponse
	require.NoError(t, json.Unmarshal(data, &outgoing))
	require.Len(t, outgoing, 1)
	require.Equal(t, "rejected", outgoing[0].Status)
}

func TestProposeErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, adaH := apiKeyFor(t, srv, "Ada")
	_, benH := apiKeyFor(t, srv, "Ben")
	mine := createSlot(t, srv, adaH, "mine", "offered")
	other := createSlot(t, srv, adaH, "other", "offered")
	locked := createSlot(t, srv, benH, "locked", "locked")

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing slot", map[string]any{"my_slot_id": mine.ID, "their_slot_id": "nope"}, http.StatusNotFound, "slot_not_found"},
		{"not owner", map[string]any{"my_slot_id": locked.ID, "their_slot_id": mine.ID}, http.StatusForbidden, "not_owner"},
		{"self trade", map[string]any{"my_slot_id": mine.ID, "their_slot_id": other.ID}, http.StatusConflict, "self_trade"},
		{"not tradeable", map[string]any{"my_slot_id": mine.ID, "their_slot_id": locked.ID}, http.StatusConflict, "slot_not_tradeable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/swap-requests", tc.body, adaH)
			require.Equal(t, tc.status, res.StatusCode, string(data))
			require.Equal(t, tc.code, decodeError(t, data).Code)
		})
	}
}

func TestSlotLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, adaH := apiKeyFor(t, srv, "Ada")
	_, benH := apiKeyFor(t, srv, "Ben")
	s := createSlot(t, srv, adaH, "focus", "locked")
	require.Equal(t, "locked", s.Status)

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/slots/"+s.ID, map[string]any{"status": "offered"}, adaH)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var updated SlotResponse
	require.NoError(t, json.Unmarshal(data, &updated))
	require.Equal(t, "offered", updated.Status)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/slots/"+s.ID, map[string]any{"status": "reserved"}, adaH)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/slots", map[string]any{
		"title": "backwards",
		"start": "2024-03-01T10:00:00Z",
		"end":   "2024-03-01T09:00:00Z",
	}, adaH)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	require.Equal(t, "invalid_slot", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/slots/"+s.ID, nil, benH)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/slots/"+s.ID, nil, adaH)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/slots/"+s.ID, nil, adaH)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/slots", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	require.Equal(t, "unauthorized", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/slots", nil, map[string]string{"X-Api-Key": "swp_bogus"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/slots", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))

	ada, _ := apiKeyFor(t, srv, "Ada")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/token", map[string]any{"party_id": ada.ID}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tok DevTokenResponse
	require.NoError(t, json.Unmarshal(data, &tok))
	require.NotEmpty(t, tok.Token)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + tok.Token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me PartyResponse
	require.NoError(t, json.Unmarshal(data, &me))
	require.Equal(t, ada.ID, me.ID)
	require.Equal(t, "Ada", me.DisplayName)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/token", map[string]any{"party_id": "ghost"}, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
}

func TestDevLoginRequiresSecret(t *testing.T) {
	_, err := New(Config{Auth: AuthConfig{DevLogin: true}})
	require.Error(t, err)
}

func TestCORSPreflight(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodOptions, srv.URL+"/v1/slots", nil, map[string]string{
		"Origin":                        "http://app.local",
		"Access-Control-Request-Method": "POST",
	})
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Equal(t, "http://app.local", res.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, res.Header.Get("Access-Control-Allow-Headers"), "X-Api-Key")

	res, _ = doJSON(t, client, http.MethodOptions, srv.URL+"/v1/slots", nil, map[string]string{
		"Origin":                        "http://evil.local",
		"Access-Control-Request-Method": "POST",
	})
	require.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestOpenAPIIsPublicAndSecured(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, paths, "/v1/swap-requests/{request_id}/respond")
	components := doc["components"].(map[string]any)
	require.Contains(t, components["securitySchemes"], "apiKeyAuth")
}

func TestOpenAPIConcurrentFirstFetch(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	bodies := make([][]byte, 8)
	var g errgroup.Group
	for i := range bodies {
		g.Go(func() error {
			res, err := srv.Client().Get(srv.URL + "/v1/openapi.json")
			if err != nil {
				return err
			}
			defer res.Body.Close()
			if res.StatusCode != http.StatusOK {
				return fmt.Errorf("status %d", res.StatusCode)
			}
			bodies[i], err = io.ReadAll(res.Body)
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, b := range bodies[1:] {
		require.Equal(t, bodies[0], b)
	}
}
