package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"ctm_arena/internal/bootstrap"
	"ctm_arena/internal/ctm"
	"ctm_arena/internal/domain"
	"ctm_arena/internal/service"
)

// End-to-end smoke against a running server: two fresh identities
// authenticate, bootstrap a session via the artifact/envelope handshake,
// subscribe to the event stream, and play a full game over HTTP.
func main() {
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	base := fmt.Sprintf("http://127.0.0.1:%s/api/v1", port)

	_, privA, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("keygen A: %v", err)
	}
	_, privB, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("keygen B: %v", err)
	}

	tokenA := authenticate(base, privA, "A")
	tokenB := authenticate(base, privB, "B")

	sim := &httpSimulator{base: base, token: tokenA}
	ctx := context.Background()

	height, err := sim.Height(ctx)
	if err != nil {
		log.Fatalf("height: %v", err)
	}
	expiry := height + 100

	sessionID := randomSessionID()
	log.Printf("session_id=%d height=%d expiry=%d", sessionID, height, expiry)

	art, err := bootstrap.Draft(ctx, sim, privA, sessionID, 10, 10, expiry)
	if err != nil {
		log.Fatalf("draft: %v", err)
	}
	encoded, err := art.Encode()
	if err != nil {
		log.Fatalf("encode artifact: %v", err)
	}

	// B imports with its own token, as a real counterparty would.
	env, err := bootstrap.Import(ctx, &httpSimulator{base: base, token: tokenB}, privB, encoded, 10, expiry)
	if err != nil {
		log.Fatalf("import: %v", err)
	}
	envEncoded, err := env.Encode()
	if err != nil {
		log.Fatalf("encode envelope: %v", err)
	}

	var created map[string]any
	post(base, tokenB, "/sessions", map[string]any{"envelope": envEncoded}, &created)
	log.Printf("session created: %v", created)

	connA := dialWS(port, tokenA, sessionID)
	defer connA.Close()
	connB := dialWS(port, tokenB, sessionID)
	defer connB.Close()

	saltA1, _ := ctm.NewHandsSalt()
	saltB1, _ := ctm.NewHandsSalt()
	saltA2, _ := ctm.NewChoiceSalt()
	saltB2, _ := ctm.NewChoiceSalt()

	moves := fmt.Sprintf("/sessions/%d", sessionID)
	post(base, tokenA, moves+"/commit-hands", map[string]any{
		"hash": ctm.HandsCommitment(domain.HandRock, domain.HandPaper, saltA1).Hex(),
	}, nil)
	post(base, tokenB, moves+"/commit-hands", map[string]any{
		"hash": ctm.HandsCommitment(domain.HandScissors, domain.HandRock, saltB1).Hex(),
	}, nil)
	post(base, tokenA, moves+"/reveal-hands", map[string]any{
		"left": 0, "right": 1, "salt": hex.EncodeToString(saltA1[:]),
	}, nil)
	post(base, tokenB, moves+"/reveal-hands", map[string]any{
		"left": 2, "right": 0, "salt": hex.EncodeToString(saltB1[:]),
	}, nil)
	post(base, tokenA, moves+"/commit-choice", map[string]any{
		"hash": ctm.ChoiceCommitment(0, saltA2).Hex(),
	}, nil)
	post(base, tokenB, moves+"/commit-choice", map[string]any{
		"hash": ctm.ChoiceCommitment(0, saltB2).Hex(),
	}, nil)
	post(base, tokenA, moves+"/reveal-choice", map[string]any{
		"index": 0, "salt": hex.EncodeToString(saltA2[:]),
	}, nil)

	var final map[string]any
	post(base, tokenB, moves+"/reveal-choice", map[string]any{
		"index": 0, "salt": hex.EncodeToString(saltB2[:]),
	}, &final)
	log.Printf("final session: %v", final)

	waitForCompletion(connA, "A")
	waitForCompletion(connB, "B")

	log.Println("smoke test finished")
}

func authenticate(base string, priv ed25519.PrivateKey, name string) string {
	proof := service.SignAddressProof(priv, time.Now())
	var resp struct {
		Token string `json:"token"`
	}
	post(base, "", "/auth", proof, &resp)
	if resp.Token == "" {
		log.Fatalf("auth %s: empty token", name)
	}
	log.Printf("%s authenticated as %s", name, proof.Address)
	return resp.Token
}

func post(base, token, path string, body, out any) {
	raw, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal %s: %v", path, err)
	}
	req, err := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(raw))
	if err != nil {
		log.Fatalf("request %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		log.Fatalf("POST %s: status %d body %s", path, resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			log.Fatalf("decode %s: %v", path, err)
		}
	}
}

// httpSimulator runs the bootstrap simulation against the server's API, the
// same way an external client tool would.
type httpSimulator struct {
	base  string
	token string
}

func (s *httpSimulator) Height(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/height", nil)
	if err != nil {
		return 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var out struct {
		Height uint64 `json:"height"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Height, nil
}

func (s *httpSimulator) SimulateCreate(ctx context.Context, id uint32, a, b domain.Address, stakeA, stakeB int64) ([]bootstrap.RequiredAuth, error) {
	raw, err := json.Marshal(map[string]any{
		"session_id": id,
		"player_a":   a.String(),
		"player_b":   b.String(),
		"stake_a":    stakeA,
		"stake_b":    stakeB,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/sessions/simulate", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("simulate: status %d body %s", resp.StatusCode, data)
	}
	var out struct {
		RequiredAuths []bootstrap.RequiredAuth `json:"required_auths"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out.RequiredAuths, nil
}

func dialWS(port, token string, sessionID uint32) *websocket.Conn {
	url := fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s&session_id=%d", port, token, sessionID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func waitForCompletion(conn *websocket.Conn, name string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			continue
		}
		var obj struct {
			Event *domain.Event `json:"event"`
		}
		if err := json.Unmarshal(msg, &obj); err != nil || obj.Event == nil {
			continue
		}
		log.Printf("%s event: %s %s", name, obj.Event.Type, string(msg))
		if obj.Event.Type == domain.EventSessionCompleted {
			return
		}
	}
	log.Printf("%s: no completion event before deadline", name)
}

func randomSessionID() uint32 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<31))
	if err != nil {
		log.Fatalf("session id: %v", err)
	}
	return uint32(n.Int64()) + 1
}
