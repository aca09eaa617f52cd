package admin_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sentinelops/sentinel/internal/admin"
	"github.com/sentinelops/sentinel/internal/audit"
	"github.com/sentinelops/sentinel/internal/detector"
	"github.com/sentinelops/sentinel/internal/enforce"
	"github.com/sentinelops/sentinel/internal/ledger"
	"github.com/sentinelops/sentinel/internal/monitor"
	"github.com/sentinelops/sentinel/internal/notify"
	"github.com/sentinelops/sentinel/internal/response"
	"github.com/sentinelops/sentinel/internal/risk"
)

type fixture struct {
	router *gin.Engine
	ledger *ledger.Ledger
	log    *audit.MemoryLog
	now    time.Time
}

func setup(t *testing.T, password string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	blockLedger := ledger.New(clock)
	log := audit.NewMemoryLog()
	counters := audit.NewCounters(now)
	adapter := enforce.NewNoopAdapter(zap.NewNop())
	notifier := notify.NewConsoleNotifier(zap.NewNop())
	engine := response.New(blockLedger, adapter, notifier, log, counters, 10*time.Minute, zap.NewNop())
	collector := detector.NewCollector(nil, nil, time.Second, zap.NewNop())
	scheduler := monitor.New(
		monitor.Config{}, collector, engine, blockLedger, adapter,
		log, counters, risk.DefaultWeights(), clock, zap.NewNop(),
	)

	var hash string
	if password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
		hash = string(b)
	}

	tokens := admin.NewTokenIssuer("test-secret", time.Hour)
	h := admin.NewHandler(scheduler, blockLedger, engine, log, counters, tokens, hash, clock, zap.NewNop())

	r := gin.New()
	h.Register(r)
	return &fixture{router: r, ledger: blockLedger, log: log, now: now}
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T, password string) string {
	t.Helper()
	w := f.do(http.MethodPost, "/api/v1/auth/login", `{"password":"`+password+`"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp["token"]
}

func TestHealth_200(t *testing.T) {
	f := setup(t, "")

	w := f.do(http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
	if resp["state"] != "idle" {
		t.Errorf("expected state idle, got %v", resp["state"])
	}
}

func TestStatus_reportsActiveBlocks(t *testing.T) {
	f := setup(t, "")
	if _, err := f.ledger.Create("10.0.0.1", 0.9, 10*time.Minute); err != nil {
		t.Fatalf("create block: %v", err)
	}

	w := f.do(http.MethodGet, "/api/v1/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if int(resp["active_blocks"].(float64)) != 1 {
		t.Errorf("expected 1 active block, got %v", resp["active_blocks"])
	}
	if _, ok := resp["stats"]; !ok {
		t.Error("expected stats snapshot in response")
	}
}

func TestBlocks_listsRecords(t *testing.T) {
	f := setup(t, "")
	f.ledger.Create("10.0.0.1", 0.85, 10*time.Minute)
	f.ledger.Create("10.0.0.2", 0.92, 10*time.Minute)

	w := f.do(http.MethodGet, "/api/v1/blocks", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count  int                  `json:"count"`
		Blocks []ledger.BlockRecord `json:"blocks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.Blocks) != 2 {
		t.Errorf("expected 2 blocks, got count=%d len=%d", resp.Count, len(resp.Blocks))
	}
}

func TestLogin_wrongPassword_401(t *testing.T) {
	f := setup(t, "correct-horse")

	w := f.do(http.MethodPost, "/api/v1/auth/login", `{"password":"wrong"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLogin_notConfigured_503(t *testing.T) {
	f := setup(t, "")

	w := f.do(http.MethodPost, "/api/v1/auth/login", `{"password":"anything"}`, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRelease_requiresAuth(t *testing.T) {
	f := setup(t, "correct-horse")
	f.ledger.Create("10.0.0.9", 0.9, 10*time.Minute)

	w := f.do(http.MethodDelete, "/api/v1/blocks/10.0.0.9", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = f.do(http.MethodDelete, "/api/v1/blocks/10.0.0.9", "", "not-a-jwt")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bogus token, got %d", w.Code)
	}
}

func TestRelease_liftsBlock(t *testing.T) {
	f := setup(t, "correct-horse")
	f.ledger.Create("10.0.0.9", 0.9, 10*time.Minute)
	token := f.login(t, "correct-horse")

	w := f.do(http.MethodDelete, "/api/v1/blocks/10.0.0.9", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if f.ledger.IsActive("10.0.0.9") {
		t.Error("block should no longer be active after release")
	}
}

func TestRelease_noActiveBlock_404(t *testing.T) {
	f := setup(t, "correct-horse")
	token := f.login(t, "correct-horse")

	w := f.do(http.MethodDelete, "/api/v1/blocks/10.0.0.9", "", token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuditTail_defaultLimit(t *testing.T) {
	f := setup(t, "")

	w := f.do(http.MethodGet, "/api/v1/audit", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	// Fresh log holds only the genesis record.
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("expected 1 record, got %v", resp["count"])
	}
}

func TestAuditTail_rejectsBadLimit(t *testing.T) {
	f := setup(t, "")

	for _, raw := range []string{"0", "-5", "1001", "abc"} {
		w := f.do(http.MethodGet, "/api/v1/audit?limit="+raw, "", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", raw, w.Code)
		}
	}
}

func TestAuditVerify_valid(t *testing.T) {
	f := setup(t, "")

	w := f.do(http.MethodGet, "/api/v1/audit/verify", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["valid"] != true {
		t.Errorf("expected valid=true, got %v", resp["valid"])
	}
	if resp["root"] == "" {
		t.Error("expected non-empty root hash")
	}
}

func TestMetrics_endpointServes(t *testing.T) {
	f := setup(t, "")

	w := f.do(http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestTokenIssuer_roundTrip(t *testing.T) {
	issuer := admin.NewTokenIssuer("secret", time.Minute)
	token, err := issuer.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Verify(token); err != nil {
		t.Errorf("verify: %v", err)
	}

	other := admin.NewTokenIssuer("different-secret", time.Minute)
	if _, err := other.Verify(token); err == nil {
		t.Error("expected verification failure with wrong secret")
	}
}
