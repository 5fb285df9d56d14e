package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"fundchain/core"
	"fundchain/crypto"
	"fundchain/integrations/audit"
	"fundchain/integrations/journal"
	"fundchain/native/access"
	"fundchain/native/crowdfund"
	"fundchain/native/ledger"
	"fundchain/storage"
)

var (
	secret     = []byte("0123456789abcdef0123456789abcdef")
	admin      = [20]byte{0xAD}
	updater    = [20]byte{0x01}
	pauser     = [20]byte{0x02}
	owner      = [20]byte{0x03}
	withdrawer = [20]byte{0x04}
	donor      = [20]byte{0x10}
	outsider   = [20]byte{0x11}
	token      = [20]byte{0xA1}
)

type harness struct {
	t      *testing.T
	exec   *core.Executor
	server *Server
	http   *httptest.Server
}

func newHarness(t *testing.T, devMode bool) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	exec, err := core.NewExecutor(db, core.Options{})
	require.NoError(t, err)
	t.Cleanup(exec.Close)
	require.NoError(t, exec.Bootstrap(context.Background(), core.Genesis{
		Roles: map[string][][20]byte{
			access.RoleDefaultAdmin: {admin},
			access.RoleUpdater:      {updater},
			access.RolePauser:       {pauser},
			access.RoleWithdrawer:   {withdrawer},
		},
	}))

	store, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	exec.AddSink(store)

	events, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })
	exec.AddSink(events)

	srv, err := NewServer(Config{
		Executor: exec,
		Audit:    store,
		Journal:  events,
		Auth:     AuthConfig{Secret: secret},
		DevMode:  devMode,
	})
	require.NoError(t, err)
	exec.AddSink(srv.Hub())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{t: t, exec: exec, server: srv, http: ts}
}

func acct(a [20]byte) string { return crypto.FormatAccount(a) }

func (h *harness) do(method, path string, as *[20]byte, body interface{}) (int, map[string]interface{}) {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.http.URL+path, reader)
	require.NoError(h.t, err)
	if as != nil {
		tok, err := IssueToken(secret, acct(*as), "", "", time.Minute)
		require.NoError(h.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := h.http.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (h *harness) ok(method, path string, as [20]byte, body interface{}) map[string]interface{} {
	h.t.Helper()
	status, out := h.do(method, path, &as, body)
	require.Equal(h.t, http.StatusOK, status, "%s %s: %v", method, path, out)
	return out
}

func (h *harness) createProject() uint64 {
	h.t.Helper()
	h.ok(http.MethodPost, "/v1/tokens", updater, map[string]string{"token": acct(token)})
	out := h.ok(http.MethodPost, "/v1/projects", updater, map[string]interface{}{
		"owner":                  acct(owner),
		"exchangeToken":          acct(token),
		"name":                   "MyProject",
		"assoName":               "MyAsso",
		"description":            "MyDescription",
		"teamMembers":            []string{"TeamMember1"},
		"requiredAmount":         "300000",
		"requiredVotePercentage": 5000,
		"voteCooldown":           1,
		"thresholdBudgets":       []interface{}{"50000", 100000, "150000"},
	})
	result := out["result"].(map[string]interface{})
	return uint64(result["projectId"].(float64))
}

func (h *harness) fund(who [20]byte, amount string) {
	h.t.Helper()
	h.ok(http.MethodPost, "/v1/ledger/mint", who, map[string]string{"token": acct(token), "to": acct(who), "amount": amount})
	h.ok(http.MethodPost, "/v1/ledger/approve", who, map[string]string{"token": acct(token), "amount": amount})
}

func eventTypes(out map[string]interface{}) []string {
	raw, _ := out["events"].([]interface{})
	types := make([]string, 0, len(raw))
	for _, e := range raw {
		types = append(types, e.(map[string]interface{})["type"].(string))
	}
	return types
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, false)
	status, out := h.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", out["status"])

	resp, err := h.http.Client().Get(h.http.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}

func TestWritesRequireValidToken(t *testing.T) {
	h := newHarness(t, true)
	status, out := h.do(http.MethodPost, "/v1/tokens", nil, map[string]string{"token": acct(token)})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "missing_token", out["code"])

	req, err := http.NewRequest(http.MethodPost, h.http.URL+"/v1/tokens", strings.NewReader(`{}`))
	require.NoError(t, err)
	forged, err := IssueToken([]byte("another-secret-another-secret-xx"), acct(updater), "", "", time.Minute)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp, err := h.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMilestoneLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, true)
	id := h.createProject()
	base := fmt.Sprintf("/v1/projects/%d", id)

	h.fund(donor, "100000")
	out := h.ok(http.MethodPost, base+"/donations", donor, map[string]string{"amount": "60000"})
	require.Equal(t, []string{
		ledger.EventTypeTransfer,
		crowdfund.EventTypeDonationRecorded,
		crowdfund.EventTypeVoteSessionStarted,
	}, eventTypes(out))

	_, threshold := h.do(http.MethodGet, base+"/thresholds/0", nil, nil)
	require.Equal(t, true, threshold["isVotingInSession"])

	h.ok(http.MethodPost, base+"/votes", donor, map[string]bool{"choice": true})
	_, ballot := h.do(http.MethodGet, base+"/thresholds/0/ballots/"+acct(donor), nil, nil)
	require.Equal(t, true, ballot["voted"])
	require.Equal(t, true, ballot["choice"])

	out = h.ok(http.MethodPost, base+"/votes/end", updater, nil)
	result := out["result"].(map[string]interface{})
	require.Equal(t, true, result["passed"])
	require.Equal(t, "50000", result["released"])

	out = h.ok(http.MethodPost, base+"/withdraw", owner, nil)
	require.Equal(t, "50000", out["result"].(map[string]interface{})["amount"])

	_, bal := h.do(http.MethodGet, "/v1/ledger/balances/"+acct(token)+"/"+acct(owner), nil, nil)
	require.Equal(t, "50000", bal["balance"])

	_, project := h.do(http.MethodGet, base, nil, nil)
	require.Equal(t, "60000", project["currentAmount"])
	require.Equal(t, "0", project["availableToWithdraw"])
	require.Equal(t, float64(1), project["currentThreshold"])

	_, donation := h.do(http.MethodGet, base+"/donations/"+acct(donor), nil, nil)
	require.Equal(t, "60000", donation["amount"])
	require.Equal(t, true, donation["isDonator"])

	_, events := h.do(http.MethodGet, "/v1/events?type="+crowdfund.EventTypeFundsWithdrawn, nil, nil)
	require.Len(t, events["events"], 1)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, true)
	id := h.createProject()
	base := fmt.Sprintf("/v1/projects/%d", id)
	h.fund(donor, "100000")

	cases := []struct {
		name   string
		method string
		path   string
		as     [20]byte
		body   interface{}
		status int
		code   string
	}{
		{"amount too small", http.MethodPost, base + "/donations", donor, map[string]string{"amount": "1"}, http.StatusBadRequest, "invalid_argument"},
		{"malformed amount", http.MethodPost, base + "/donations", donor, map[string]string{"amount": "ten"}, http.StatusBadRequest, "bad_request"},
		{"unknown field", http.MethodPost, base + "/fee", updater, map[string]int{"basis": 1}, http.StatusBadRequest, "bad_request"},
		{"missing role", http.MethodPost, base + "/status", outsider, map[string]bool{"active": false}, http.StatusForbidden, "missing_role"},
		{"not a donator", http.MethodPost, base + "/votes", outsider, map[string]bool{"choice": true}, http.StatusForbidden, "forbidden"},
		{"not in session", http.MethodPost, base + "/votes/end", updater, nil, http.StatusConflict, "failed_precondition"},
		{"unknown project", http.MethodPost, "/v1/projects/99/donations", donor, map[string]string{"amount": "20000"}, http.StatusBadRequest, "invalid_argument"},
		{"no allowance", http.MethodPost, base + "/donations", outsider, map[string]string{"amount": "20000"}, http.StatusConflict, "failed_precondition"},
		{"unknown role", http.MethodPost, "/v1/admin/roles/grant", admin, map[string]string{"role": "ROOT", "account": acct(outsider)}, http.StatusBadRequest, "invalid_argument"},
		{"not paused", http.MethodPost, "/v1/admin/unpause", pauser, map[string]string{"module": crowdfund.ModuleName}, http.StatusConflict, "module_not_paused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			as := tc.as
			status, out := h.do(tc.method, tc.path, &as, tc.body)
			require.Equal(t, tc.status, status, "%v", out)
			require.Equal(t, tc.code, out["code"])
		})
	}
}

func TestPauseBlocksCrowdfundCalls(t *testing.T) {
	h := newHarness(t, true)
	id := h.createProject()
	h.fund(donor, "100000")

	h.ok(http.MethodPost, "/v1/admin/pause", pauser, map[string]string{"module": crowdfund.ModuleName})
	_, paused := h.do(http.MethodGet, "/v1/admin/pauses/"+crowdfund.ModuleName, nil, nil)
	require.Equal(t, true, paused["paused"])

	status, out := h.do(http.MethodPost, fmt.Sprintf("/v1/projects/%d/donations", id), &donor, map[string]string{"amount": "20000"})
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "module_paused", out["code"])

	status, out = h.do(http.MethodPost, "/v1/projects", &updater, map[string]interface{}{
		"owner":                  acct(owner),
		"exchangeToken":          acct(token),
		"name":                   "Second",
		"requiredAmount":         "50000",
		"requiredVotePercentage": 5000,
		"voteCooldown":           1,
		"thresholdBudgets":       []interface{}{"50000"},
	})
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "module_paused", out["code"])
	_, list := h.do(http.MethodGet, "/v1/projects", nil, nil)
	require.Equal(t, float64(1), list["total"])

	h.ok(http.MethodPost, "/v1/admin/unpause", pauser, map[string]string{"module": crowdfund.ModuleName})
	h.ok(http.MethodPost, fmt.Sprintf("/v1/projects/%d/donations", id), donor, map[string]string{"amount": "20000"})
}

func TestRoleAdministration(t *testing.T) {
	h := newHarness(t, true)
	h.ok(http.MethodPost, "/v1/admin/roles/grant", admin, map[string]string{"role": "updater", "account": acct(outsider)})
	_, members := h.do(http.MethodGet, "/v1/admin/roles/UPDATER", nil, nil)
	require.ElementsMatch(t, []interface{}{acct(updater), acct(outsider)}, members["members"])

	h.ok(http.MethodPost, "/v1/admin/roles/revoke", admin, map[string]string{"role": "UPDATER", "account": acct(outsider)})
	_, members = h.do(http.MethodGet, "/v1/admin/roles/UPDATER", nil, nil)
	require.Equal(t, []interface{}{acct(updater)}, members["members"])
}

func TestMintOnlyInDevMode(t *testing.T) {
	h := newHarness(t, false)
	status, _ := h.do(http.MethodPost, "/v1/ledger/mint", &donor, map[string]string{"token": acct(token), "to": acct(donor), "amount": "1"})
	require.Equal(t, http.StatusNotFound, status)
}

func TestListProjectsAndTokens(t *testing.T) {
	h := newHarness(t, true)
	h.createProject()

	_, tokens := h.do(http.MethodGet, "/v1/tokens", nil, nil)
	require.Equal(t, []interface{}{acct(token)}, tokens["tokens"])
	_, supported := h.do(http.MethodGet, "/v1/tokens/"+acct(token), nil, nil)
	require.Equal(t, true, supported["supported"])

	_, list := h.do(http.MethodGet, "/v1/projects?limit=10", nil, nil)
	require.Equal(t, float64(1), list["total"])
	require.Len(t, list["projects"], 1)

	_, thresholds := h.do(http.MethodGet, "/v1/projects/0/thresholds", nil, nil)
	require.Len(t, thresholds["thresholds"], 3)

	status, _ := h.do(http.MethodGet, "/v1/projects/abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)

	_, info := h.do(http.MethodGet, "/v1/info", nil, nil)
	require.Equal(t, "10000", info["minDonation"])
	require.Equal(t, acct(crowdfund.DefaultVaultAddress()), info["vault"])
}

func TestEventStream(t *testing.T) {
	h := newHarness(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/v1/events/stream?types=" + crowdfund.EventTypeTokenAdded
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return h.server.Hub().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.ok(http.MethodPost, "/v1/tokens", updater, map[string]string{"token": acct(token)})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt EventView
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, crowdfund.EventTypeTokenAdded, evt.Type)
	require.NotZero(t, evt.Sequence)
}

func TestEventStreamReplaysFromCursor(t *testing.T) {
	h := newHarness(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, second, third := [20]byte{0xB1}, [20]byte{0xB2}, [20]byte{0xB3}
	h.ok(http.MethodPost, "/v1/tokens", updater, map[string]string{"token": acct(first)})
	h.ok(http.MethodPost, "/v1/tokens", updater, map[string]string{"token": acct(second)})

	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/v1/events/stream?after=0&types=" + crowdfund.EventTypeTokenAdded
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() EventView {
		t.Helper()
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var evt EventView
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	}
	replayed := []EventView{read(), read()}
	require.Less(t, replayed[0].Sequence, replayed[1].Sequence)

	require.Eventually(t, func() bool { return h.server.Hub().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.ok(http.MethodPost, "/v1/tokens", updater, map[string]string{"token": acct(third)})
	live := read()
	require.Greater(t, live.Sequence, replayed[1].Sequence)
	require.Equal(t, crowdfund.EventTypeTokenAdded, live.Type)
}

func TestEventStreamRejectsBadCursor(t *testing.T) {
	h := newHarness(t, true)
	status, body := h.do(http.MethodGet, "/v1/events/stream?after=x", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "bad_request", body["code"])
}

func TestRateLimiterPerClient(t *testing.T) {
	l := newRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	require.True(t, l.allow("a"))
	require.True(t, l.allow("a"))
	require.False(t, l.allow("a"))
	require.True(t, l.allow("b"))

	now = now.Add(time.Second)
	require.True(t, l.allow("a"))
}

func TestClassify(t *testing.T) {
	status, code := classify(fmt.Errorf("wrapped: %w", crowdfund.ErrNoFundsToWithdraw))
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "failed_precondition", code)

	status, code = classify(&access.MissingRoleError{Role: access.RolePauser})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "missing_role", code)

	status, _ = classify(fmt.Errorf("boom"))
	require.Equal(t, http.StatusInternalServerError, status)
}

func TestServeListenerWithConnectionCap(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	exec, err := core.NewExecutor(db, core.Options{})
	require.NoError(t, err)
	srv, err := NewServer(Config{Executor: exec, Auth: AuthConfig{Secret: secret}, MaxConnections: 1})
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestAmountDecoding(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"120000"`), &a))
	require.Equal(t, "120000", a.BigInt().String())
	require.NoError(t, json.Unmarshal([]byte(`42`), &a))
	require.Equal(t, int64(42), a.BigInt().Int64())

	for _, raw := range []string{`"-5"`, `-5`, `"1.5"`, `""`} {
		err := json.Unmarshal([]byte(raw), &a)
		require.ErrorIs(t, err, errBadRequest, raw)
	}

	h := newHarness(t, true)
	id := h.createProject()
	status, out := h.do(http.MethodPost, fmt.Sprintf("/v1/projects/%d/donations", id), &donor, map[string]string{"amount": "-5"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "bad_request", out["code"])
}
