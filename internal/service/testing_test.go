package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/digkill/PixelMuse/internal/gemini"
	"github.com/digkill/PixelMuse/internal/models"
	"github.com/digkill/PixelMuse/internal/repository"
)

type fakeModel struct {
	mu         sync.Mutex
	fuseCalls  int
	synthCalls int
	editCalls  int
	lastFusion gemini.FusionRequest
	lastSynth  gemini.SynthesisRequest
	lastEdit   gemini.EditRequest
	lastKey    string

	fusePrompt string
	fuseErr    error
	synthErr   error
	editErr    error
	block      chan struct{}
}

func (f *fakeModel) FusePrompt(_ context.Context, apiKey string, req gemini.FusionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fuseCalls++
	f.lastFusion = req
	f.lastKey = apiKey
	return f.fusePrompt, f.fuseErr
}

func (f *fakeModel) Synthesize(_ context.Context, apiKey string, req gemini.SynthesisRequest) (*gemini.Image, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthCalls++
	f.lastSynth = req
	f.lastKey = apiKey
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return &gemini.Image{MimeType: "image/png", Bytes: []byte("synth")}, nil
}

func (f *fakeModel) Edit(_ context.Context, apiKey string, req gemini.EditRequest) (*gemini.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editCalls++
	f.lastEdit = req
	f.lastKey = apiKey
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &gemini.Image{MimeType: "image/png", Bytes: []byte("edited")}, nil
}

func (f *fakeModel) calls() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fuseCalls, f.synthCalls, f.editCalls
}

type fakeValidator struct {
	result gemini.KeyValidation
	seen   string
}

func (v *fakeValidator) ValidateKey(_ context.Context, apiKey string) gemini.KeyValidation {
	v.seen = apiKey
	return v.result
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyStore fails Update on one key once armed.
type flakyStore struct {
	*repository.MemoryStore
	mu      sync.Mutex
	failKey string
	failErr error
}

func (s *flakyStore) failUpdates(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failKey, s.failErr = key, err
}

func (s *flakyStore) Update(ctx context.Context, key string, fn repository.UpdateFunc) error {
	s.mu.Lock()
	failKey, failErr := s.failKey, s.failErr
	s.mu.Unlock()
	if failErr != nil && key == failKey {
		return failErr
	}
	return s.MemoryStore.Update(ctx, key, fn)
}

type harness struct {
	store       *flakyStore
	clock       *clock
	model       *fakeModel
	validator   *fakeValidator
	accounts    *AccountService
	quota       *GuestQuota
	credentials *CredentialService
	history     *HistoryService
	generation  *GenerationService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, builtinKey string) *harness {
	t.Helper()
	h := &harness{
		store:     &flakyStore{MemoryStore: repository.NewMemoryStore()},
		clock:     &clock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		model:     &fakeModel{fusePrompt: "fused prompt"},
		validator: &fakeValidator{result: gemini.KeyValidation{Status: gemini.KeyValid, Valid: true}},
	}
	log := discardLogger()
	plans := NewPlanCatalog()
	h.accounts = NewAccountService(log, repository.NewAccountRepository(h.store), repository.NewSessionRepository(h.store), plans, h.clock.Now)
	h.quota = NewGuestQuota(repository.NewGuestUsageRepository(h.store), h.clock.Now, time.UTC)
	h.credentials = NewCredentialService(log, builtinKey, repository.NewCredentialRepository(h.store), h.validator)
	h.history = NewHistoryService(log, repository.NewRecordRepository(h.store), nil, h.clock.Now)
	h.generation = NewGenerationService(log, h.accounts, h.quota, h.credentials, NewTemplateCatalog(), h.history, h.model)
	return h
}

// signIn registers an account and moves it to plan with the given balance.
func (h *harness) signIn(t *testing.T, plan models.PlanType, credits int) *models.Account {
	t.Helper()
	ctx := context.Background()
	if _, err := h.accounts.Register(ctx, "user@pixelmuse.io", "secret-pass", "User"); err != nil {
		t.Fatalf("register: %v", err)
	}
	account, err := h.accounts.UpdateAccount(ctx, AccountUpdate{Plan: &plan, Credits: &credits})
	if err != nil {
		t.Fatalf("update account: %v", err)
	}
	return account
}

func upload(n int) []models.UploadedImage {
	out := make([]models.UploadedImage, n)
	for i := range out {
		out[i] = models.UploadedImage{ID: "img", MimeType: "image/jpeg", Data: "aGVsbG8="}
	}
	return out
}
