package integration

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"ctm_arena/internal/bootstrap"
	"ctm_arena/internal/config"
	"ctm_arena/internal/ctm"
	"ctm_arena/internal/domain"
	httpserver "ctm_arena/internal/http"
	"ctm_arena/internal/ledger"
	"ctm_arena/internal/proof"
	"ctm_arena/internal/repository"
	"ctm_arena/internal/service"
	"ctm_arena/internal/ws"
)

// Full protocol run against an in-process server: two fresh identities
// authenticate, bootstrap a session via artifact and envelope, play every
// phase over HTTP, and watch the event stream.
func TestE2E_FullSession(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	service.InitJWT("test-secret")

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer db.Close()
	applyMigrations(t, db)

	ctx := context.Background()
	hub := ws.NewHub()
	store := repository.NewSessionRepository(db)
	arena, err := ledger.NewArena(ctx, store, hub)
	if err != nil {
		t.Fatalf("load arena: %v", err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	httpserver.RegisterRoutes(r, db, arena, hub, proof.Nop{}, "test", &config.Config{
		MinStake:       1,
		MaxStake:       100000,
		AuthProofTTL:   5 * time.Minute,
		MoveRateLimit:  1000,
		MoveRateWindow: 60,
	})
	ts := httptest.NewServer(r)
	defer ts.Close()

	_, privA, _ := ed25519.GenerateKey(rand.Reader)
	_, privB, _ := ed25519.GenerateKey(rand.Reader)
	addrA := domain.AddressFromPubKey(privA.Public().(ed25519.PublicKey))

	tokenA := httpAuth(t, ts.URL, privA)
	tokenB := httpAuth(t, ts.URL, privB)

	// Bootstrap against the live arena; both signatures expire well past the
	// handful of moves this run commits.
	height, err := arena.Height(ctx)
	if err != nil {
		t.Fatalf("height: %v", err)
	}
	expiry := height + 100

	id := uint32(time.Now().UnixNano())
	art, err := bootstrap.Draft(ctx, arena, privA, id, 10, 10, expiry)
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	encoded, err := art.Encode()
	if err != nil {
		t.Fatalf("encode artifact: %v", err)
	}
	env, err := bootstrap.Import(ctx, arena, privB, encoded, 10, expiry)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	envEncoded, err := env.Encode()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}

	// Subscribe before finalizing so the created event is observed too.
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?token=" + tokenA
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()
	events := startEventReader(conn)

	var created map[string]any
	httpPost(t, ts.URL, tokenB, "/api/v1/sessions", map[string]any{"envelope": envEncoded}, http.StatusCreated, &created)
	if created["phase"] != float64(domain.PhaseCreated) {
		t.Fatalf("created phase = %v", created["phase"])
	}

	saltA1 := ctm.HandsSalt{1}
	saltB1 := ctm.HandsSalt{2}
	saltA2 := ctm.ChoiceSalt{3}
	saltB2 := ctm.ChoiceSalt{4}

	base := "/api/v1/sessions/" + itoa(id)
	httpPost(t, ts.URL, tokenA, base+"/commit-hands", map[string]any{
		"hash": ctm.HandsCommitment(domain.HandRock, domain.HandPaper, saltA1).Hex(),
	}, http.StatusOK, nil)
	httpPost(t, ts.URL, tokenB, base+"/commit-hands", map[string]any{
		"hash": ctm.HandsCommitment(domain.HandScissors, domain.HandRock, saltB1).Hex(),
	}, http.StatusOK, nil)
	httpPost(t, ts.URL, tokenA, base+"/reveal-hands", map[string]any{
		"left": 0, "right": 1, "salt": hex.EncodeToString(saltA1[:]),
	}, http.StatusOK, nil)
	httpPost(t, ts.URL, tokenB, base+"/reveal-hands", map[string]any{
		"left": 2, "right": 0, "salt": hex.EncodeToString(saltB1[:]),
	}, http.StatusOK, nil)
	httpPost(t, ts.URL, tokenA, base+"/commit-choice", map[string]any{
		"hash": ctm.ChoiceCommitment(0, saltA2).Hex(),
	}, http.StatusOK, nil)
	httpPost(t, ts.URL, tokenB, base+"/commit-choice", map[string]any{
		"hash": ctm.ChoiceCommitment(0, saltB2).Hex(),
	}, http.StatusOK, nil)
	httpPost(t, ts.URL, tokenA, base+"/reveal-choice", map[string]any{
		"index": 0, "salt": hex.EncodeToString(saltA2[:]),
	}, http.StatusOK, nil)

	var final map[string]any
	httpPost(t, ts.URL, tokenB, base+"/reveal-choice", map[string]any{
		"index": 0, "salt": hex.EncodeToString(saltB2[:]),
	}, http.StatusOK, &final)

	// A kept rock, B kept scissors.
	if final["phase"] != float64(domain.PhaseComplete) {
		t.Fatalf("final phase = %v", final["phase"])
	}
	if final["winner"] != addrA.String() {
		t.Fatalf("winner = %v; want %s", final["winner"], addrA)
	}

	// The pot lands on the winner's account.
	var me struct {
		Points int64 `json:"points"`
	}
	httpGet(t, ts.URL, tokenA, "/api/v1/me", &me)
	if me.Points != 10010 {
		t.Fatalf("winner points = %d; want 10010", me.Points)
	}

	// The completion event reaches the subscriber.
	waitForEvent(t, events, domain.EventSessionCompleted, 3*time.Second)

	// Replaying a move after completion is rejected, not absorbed.
	httpPost(t, ts.URL, tokenA, base+"/reveal-choice", map[string]any{
		"index": 0, "salt": hex.EncodeToString(saltA2[:]),
	}, http.StatusConflict, nil)
}

func httpAuth(t *testing.T, baseURL string, priv ed25519.PrivateKey) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	httpPost(t, baseURL, "", "/api/v1/auth", service.SignAddressProof(priv, time.Now()), http.StatusOK, &resp)
	if resp.Token == "" {
		t.Fatalf("auth returned empty token")
	}
	return resp.Token
}

func httpPost(t *testing.T, baseURL, token, path string, body any, wantStatus int, out any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var data bytes.Buffer
	_, _ = data.ReadFrom(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST %s: status %d; want %d; body %s", path, resp.StatusCode, wantStatus, data.String())
	}
	if out != nil {
		if err := json.Unmarshal(data.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
}

func httpGet(t *testing.T, baseURL, token, path string, out any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

// startEventReader owns all reads on the connection so no two goroutines
// call ReadMessage concurrently.
func startEventReader(conn *websocket.Conn) chan domain.EventType {
	out := make(chan domain.EventType, 32)
	go func() {
		defer close(out)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var obj struct {
				Event *domain.Event `json:"event"`
			}
			if json.Unmarshal(msg, &obj) == nil && obj.Event != nil {
				out <- obj.Event.Type
			}
		}
	}()
	return out
}

func waitForEvent(t *testing.T, ch chan domain.EventType, want domain.EventType, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case typ, ok := <-ch:
			if !ok {
				t.Fatalf("event stream closed before %s", want)
			}
			if typ == want {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s event", want)
		}
	}
}

func itoa(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
