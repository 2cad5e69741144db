package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"ctm_arena/internal/bootstrap"
	"ctm_arena/internal/ctm"
	"ctm_arena/internal/domain"
)

// memStore keeps everything in memory and mimics the transactional
// contract: a forced failure commits nothing.
type memStore struct {
	mu       sync.Mutex
	height   uint64
	sessions map[uint32]*domain.Session
	balances map[domain.Address]int64
	ops      []*Mutation
	failNext error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[uint32]*domain.Session),
		balances: make(map[domain.Address]int64),
	}
}

func (m *memStore) Apply(_ context.Context, mut *Mutation) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return 0, err
	}
	for _, mv := range mut.Movements {
		m.balances[mv.Address] += mv.Amount
	}
	m.sessions[mut.Session.ID] = mut.Session.Clone()
	m.ops = append(m.ops, mut)
	m.height++
	return m.height, nil
}

func (m *memStore) ActiveSessions(context.Context) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *memStore) CurrentHeight(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height, nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *captureEmitter) Emit(ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureEmitter) types() []domain.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.EventType
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

type party struct {
	priv ed25519.PrivateKey
	addr domain.Address
}

func newParty(t *testing.T) party {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return party{priv: priv, addr: domain.AddressFromPubKey(priv.Public().(ed25519.PublicKey))}
}

func newArena(t *testing.T, store Store, em Emitter) *Arena {
	t.Helper()
	a, err := NewArena(context.Background(), store, em)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	return a
}

// bootstrapSession runs the full Draft/Import/Finalize handshake against
// the arena and returns the created session.
func bootstrapSession(t *testing.T, a *Arena, pa, pb party, id uint32, stakeA, stakeB int64) *domain.Session {
	t.Helper()
	ctx := context.Background()

	art, err := bootstrap.Draft(ctx, a, pa.priv, id, stakeA, stakeB, 1000)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	encoded, err := art.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	env, err := bootstrap.Import(ctx, a, pb.priv, encoded, stakeB, 1000)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	s, err := a.CreateSession(ctx, env)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

func TestCreateSessionLocksStakes(t *testing.T) {
	store := newMemStore()
	em := &captureEmitter{}
	a := newArena(t, store, em)
	pa, pb := newParty(t), newParty(t)

	s := bootstrapSession(t, a, pa, pb, 7, 10, 10)
	if s.Phase != domain.PhaseCreated {
		t.Fatalf("phase = %v; want Created", s.Phase)
	}

	got, err := a.GetSession(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.PlayerA != pa.addr || got.PlayerB != pb.addr || got.StakeA != 10 || got.StakeB != 10 {
		t.Fatalf("session = %+v; identities or stakes wrong", got)
	}

	if store.balances[pa.addr] != -10 || store.balances[pb.addr] != -10 {
		t.Fatalf("escrow movements = %v; want -10 for both players", store.balances)
	}
	if h, _ := a.Height(context.Background()); h != 1 {
		t.Fatalf("height = %d; want 1", h)
	}
	if len(em.types()) != 1 || em.types()[0] != domain.EventSessionCreated {
		t.Fatalf("events = %v; want one session_created", em.types())
	}
}

func TestCreateSessionDuplicateID(t *testing.T) {
	a := newArena(t, newMemStore(), nil)
	pa, pb := newParty(t), newParty(t)
	bootstrapSession(t, a, pa, pb, 7, 10, 10)

	// Drafting against the occupied id fails at simulate time.
	if _, err := bootstrap.Draft(context.Background(), a, pa.priv, 7, 10, 10, 1000); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("draft on occupied id: got %v; want ErrSessionExists", err)
	}
}

func TestUnknownSessionIsGameNotFound(t *testing.T) {
	a := newArena(t, newMemStore(), nil)
	_, err := a.CommitHands(context.Background(), 999, domain.PlaceholderAddress, domain.Commitment{})
	if err != domain.ErrGameNotFound {
		t.Fatalf("got %v; want GameNotFound", err)
	}
}

func TestStoreFailureLeavesSessionUntouched(t *testing.T) {
	store := newMemStore()
	a := newArena(t, store, nil)
	pa, pb := newParty(t), newParty(t)
	bootstrapSession(t, a, pa, pb, 7, 10, 10)

	boom := errors.New("connection reset")
	store.mu.Lock()
	store.failNext = boom
	store.mu.Unlock()

	salt, _ := ctm.NewHandsSalt()
	hash := ctm.HandsCommitment(domain.HandRock, domain.HandPaper, salt)
	if _, err := a.CommitHands(context.Background(), 7, pa.addr, hash); !errors.Is(err, boom) {
		t.Fatalf("got %v; want the store error", err)
	}

	s, _ := a.GetSession(context.Background(), 7)
	if s.CommitA != nil {
		t.Fatalf("failed persist still mutated the live session")
	}

	// The same call succeeds once the store recovers.
	if _, err := a.CommitHands(context.Background(), 7, pa.addr, hash); err != nil {
		t.Fatalf("retry after store recovery: %v", err)
	}
}

func TestFullSessionPaysOutWinner(t *testing.T) {
	store := newMemStore()
	em := &captureEmitter{}
	a := newArena(t, store, em)
	pa, pb := newParty(t), newParty(t)
	ctx := context.Background()
	bootstrapSession(t, a, pa, pb, 42, 100, 100)

	saltA1, _ := ctm.NewHandsSalt()
	saltB1, _ := ctm.NewHandsSalt()
	saltA2, _ := ctm.NewChoiceSalt()
	saltB2, _ := ctm.NewChoiceSalt()

	must := func(_ *domain.Session, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("move: %v", err)
		}
	}

	must(a.CommitHands(ctx, 42, pa.addr, ctm.HandsCommitment(domain.HandRock, domain.HandPaper, saltA1)))
	must(a.CommitHands(ctx, 42, pb.addr, ctm.HandsCommitment(domain.HandScissors, domain.HandRock, saltB1)))
	must(a.RevealHands(ctx, 42, pa.addr, 0, 1, saltA1))
	must(a.RevealHands(ctx, 42, pb.addr, 2, 0, saltB1))
	must(a.CommitChoice(ctx, 42, pa.addr, ctm.ChoiceCommitment(0, saltA2)))
	must(a.CommitChoice(ctx, 42, pb.addr, ctm.ChoiceCommitment(0, saltB2)))
	must(a.RevealChoice(ctx, 42, pa.addr, 0, saltA2))

	s, err := a.RevealChoice(ctx, 42, pb.addr, 0, saltB2)
	if err != nil {
		t.Fatalf("B reveal choice: %v", err)
	}
	if s.Phase != domain.PhaseComplete || s.Winner == nil || *s.Winner != pa.addr {
		t.Fatalf("final session = %+v; want Complete with winner A", s)
	}

	// A staked 100, won the 200 pot: net +100. B is net -100.
	if store.balances[pa.addr] != 100 || store.balances[pb.addr] != -100 {
		t.Fatalf("final balances = %v; want +100/-100", store.balances)
	}

	types := em.types()
	want := []domain.EventType{
		domain.EventSessionCreated,
		domain.EventHandsCommitted,
		domain.EventHandsRevealed,
		domain.EventChoiceCommitted,
		domain.EventChoiceRevealed,
		domain.EventSessionCompleted,
	}
	if len(types) != len(want) {
		t.Fatalf("events = %v; want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %v; want %v", i, types[i], want[i])
		}
	}

	// Height advanced once per accepted call: create + 8 moves.
	if h, _ := a.Height(ctx); h != 9 {
		t.Fatalf("height = %d; want 9", h)
	}
}

func TestConcurrentSessionsDoNotInterfere(t *testing.T) {
	a := newArena(t, newMemStore(), nil)
	ctx := context.Background()

	type game struct {
		id     uint32
		pa, pb party
	}
	games := make([]game, 8)
	for i := range games {
		games[i] = game{id: uint32(i + 1), pa: newParty(t), pb: newParty(t)}
		bootstrapSession(t, a, games[i].pa, games[i].pb, games[i].id, 10, 10)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(games))
	for _, g := range games {
		wg.Add(1)
		go func(g game) {
			defer wg.Done()
			saltA, _ := ctm.NewHandsSalt()
			saltB, _ := ctm.NewHandsSalt()
			if _, err := a.CommitHands(ctx, g.id, g.pa.addr, ctm.HandsCommitment(0, 1, saltA)); err != nil {
				errs <- err
				return
			}
			if _, err := a.CommitHands(ctx, g.id, g.pb.addr, ctm.HandsCommitment(1, 2, saltB)); err != nil {
				errs <- err
				return
			}
			if _, err := a.RevealHands(ctx, g.id, g.pa.addr, 0, 1, saltA); err != nil {
				errs <- err
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent play: %v", err)
	}

	for _, g := range games {
		s, err := a.GetSession(ctx, g.id)
		if err != nil {
			t.Fatalf("GetSession(%d): %v", g.id, err)
		}
		if s.Phase != domain.PhaseHandsCommitted {
			t.Fatalf("session %d phase = %v; want HandsCommitted", g.id, s.Phase)
		}
	}
}

func TestSweepEvictsOnlySettledSessions(t *testing.T) {
	store := newMemStore()
	a := newArena(t, store, nil)
	pa, pb := newParty(t), newParty(t)
	ctx := context.Background()
	bootstrapSession(t, a, pa, pb, 1, 10, 10)

	if n := a.Sweep(0); n != 0 {
		t.Fatalf("swept %d live sessions", n)
	}

	// Finish the game, then sweep with zero retention.
	saltA1, _ := ctm.NewHandsSalt()
	saltB1, _ := ctm.NewHandsSalt()
	saltA2, _ := ctm.NewChoiceSalt()
	saltB2, _ := ctm.NewChoiceSalt()
	a.CommitHands(ctx, 1, pa.addr, ctm.HandsCommitment(0, 1, saltA1))
	a.CommitHands(ctx, 1, pb.addr, ctm.HandsCommitment(2, 0, saltB1))
	a.RevealHands(ctx, 1, pa.addr, 0, 1, saltA1)
	a.RevealHands(ctx, 1, pb.addr, 2, 0, saltB1)
	a.CommitChoice(ctx, 1, pa.addr, ctm.ChoiceCommitment(0, saltA2))
	a.CommitChoice(ctx, 1, pb.addr, ctm.ChoiceCommitment(0, saltB2))
	a.RevealChoice(ctx, 1, pa.addr, 0, saltA2)
	if _, err := a.RevealChoice(ctx, 1, pb.addr, 0, saltB2); err != nil {
		t.Fatalf("finish game: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if n := a.Sweep(time.Millisecond); n != 1 {
		t.Fatalf("swept %d; want 1", n)
	}
	if _, err := a.GetSession(ctx, 1); err != domain.ErrGameNotFound {
		t.Fatalf("evicted session lookup: got %v; want GameNotFound", err)
	}

	// The id is reusable after eviction.
	bootstrapSession(t, a, pa, pb, 1, 10, 10)
}

// stallStore holds create commits until released; every other op passes
// straight through to the wrapped store.
type stallStore struct {
	*memStore
	stallMu sync.Mutex
	entered chan struct{}
	release chan struct{}
}

func (s *stallStore) Apply(ctx context.Context, mut *Mutation) (uint64, error) {
	s.stallMu.Lock()
	entered, release := s.entered, s.release
	s.stallMu.Unlock()
	if release != nil && mut.Op == domain.OpCreateSession {
		entered <- struct{}{}
		<-release
	}
	return s.memStore.Apply(ctx, mut)
}

func TestSlowCreateDoesNotBlockOtherSessions(t *testing.T) {
	store := &stallStore{memStore: newMemStore()}
	a := newArena(t, store, nil)
	ctx := context.Background()

	pa, pb := newParty(t), newParty(t)
	bootstrapSession(t, a, pa, pb, 1, 10, 10)

	store.stallMu.Lock()
	store.entered = make(chan struct{})
	store.release = make(chan struct{})
	store.stallMu.Unlock()

	pc, pd := newParty(t), newParty(t)
	art, err := bootstrap.Draft(ctx, a, pc.priv, 2, 10, 10, 1000)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	encoded, err := art.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	env, err := bootstrap.Import(ctx, a, pd.priv, encoded, 10, 1000)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	createDone := make(chan error, 1)
	go func() {
		_, err := a.CreateSession(ctx, env)
		createDone <- err
	}()
	<-store.entered

	// A move on the established session must complete while the create of
	// session 2 is still waiting on its commit.
	moveDone := make(chan error, 1)
	go func() {
		salt, _ := ctm.NewHandsSalt()
		_, err := a.CommitHands(ctx, 1, pa.addr, ctm.HandsCommitment(0, 1, salt))
		moveDone <- err
	}()
	select {
	case err := <-moveDone:
		if err != nil {
			t.Fatalf("move during stalled create: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("move on session 1 blocked behind the stalled create of session 2")
	}

	close(store.release)
	if err := <-createDone; err != nil {
		t.Fatalf("stalled create: %v", err)
	}
	if _, err := a.GetSession(ctx, 2); err != nil {
		t.Fatalf("GetSession after stalled create: %v", err)
	}
}

func TestFailedCreateFreesID(t *testing.T) {
	store := newMemStore()
	a := newArena(t, store, nil)
	ctx := context.Background()
	pa, pb := newParty(t), newParty(t)

	art, err := bootstrap.Draft(ctx, a, pa.priv, 9, 10, 10, 1000)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	encoded, err := art.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	env, err := bootstrap.Import(ctx, a, pb.priv, encoded, 10, 1000)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	boom := errors.New("connection reset")
	store.mu.Lock()
	store.failNext = boom
	store.mu.Unlock()

	if _, err := a.CreateSession(ctx, env); !errors.Is(err, boom) {
		t.Fatalf("create with failing store: got %v; want the store error", err)
	}
	if _, err := a.GetSession(ctx, 9); err != domain.ErrGameNotFound {
		t.Fatalf("rolled-back session lookup: got %v; want GameNotFound", err)
	}
	if store.balances[pa.addr] != 0 || store.balances[pb.addr] != 0 {
		t.Fatalf("balances after failed create = %v; want untouched", store.balances)
	}

	// The id is free again and the same envelope still finalizes.
	if _, err := a.CreateSession(ctx, env); err != nil {
		t.Fatalf("retry after store recovery: %v", err)
	}
	if _, err := a.GetSession(ctx, 9); err != nil {
		t.Fatalf("GetSession after retry: %v", err)
	}
}
