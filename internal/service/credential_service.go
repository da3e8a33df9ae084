package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/digkill/PixelMuse/internal/gemini"
	"github.com/digkill/PixelMuse/internal/repository"
)

// KeyValidator performs the minimal round trip used to check a candidate key.
type KeyValidator interface {
	ValidateKey(ctx context.Context, apiKey string) gemini.KeyValidation
}

// CredentialService picks the API key for model calls. A stored custom key
// wins over the built-in one and makes generation unmetered.
type CredentialService struct {
	log       *slog.Logger
	builtin   string
	repo      *repository.CredentialRepository
	validator KeyValidator
}

func NewCredentialService(log *slog.Logger, builtin string, repo *repository.CredentialRepository, validator KeyValidator) *CredentialService {
	return &CredentialService{
		log:       log,
		builtin:   strings.TrimSpace(builtin),
		repo:      repo,
		validator: validator,
	}
}

// Active returns the key to use and whether it is the custom one. An empty
// key means nothing is configured.
func (s *CredentialService) Active(ctx context.Context) (string, bool, error) {
	custom, err := s.repo.Get(ctx)
	if err != nil {
		return "", false, err
	}
	if custom != "" {
		return custom, true, nil
	}
	return s.builtin, false, nil
}

func (s *CredentialService) IsUsingCustom(ctx context.Context) (bool, error) {
	custom, err := s.repo.Get(ctx)
	if err != nil {
		return false, err
	}
	return custom != "", nil
}

// HasBuiltin reports whether a platform key was configured at startup.
func (s *CredentialService) HasBuiltin() bool {
	return s.builtin != ""
}

// SaveCustom stores key as the custom credential. A blank key clears it.
func (s *CredentialService) SaveCustom(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return s.ClearCustom(ctx)
	}
	if err := s.repo.Save(ctx, key); err != nil {
		return err
	}
	s.log.Info("custom credential saved")
	return nil
}

func (s *CredentialService) ClearCustom(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return err
	}
	s.log.Info("custom credential cleared")
	return nil
}

func (s *CredentialService) Validate(ctx context.Context, candidate string) gemini.KeyValidation {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return gemini.KeyValidation{Status: gemini.KeyInvalid, Message: "API key is empty"}
	}
	result := s.validator.ValidateKey(ctx, candidate)
	s.log.Info("credential validated", "status", result.Status, "valid", result.Valid)
	return result
}
