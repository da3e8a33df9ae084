package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/lindell/go-burner-email-providers/burner"
	"golang.org/x/crypto/bcrypt"

	"github.com/digkill/PixelMuse/internal/models"
	"github.com/digkill/PixelMuse/internal/repository"
)

// AccountService owns registration, login and the current session. It is the
// only path through which other services read or mutate the signed-in account.
type AccountService struct {
	log      *slog.Logger
	accounts *repository.AccountRepository
	session  *repository.SessionRepository
	plans    *PlanCatalog
	now      func() time.Time
}

// AccountUpdate carries the fields to merge; nil fields are left as they are.
type AccountUpdate struct {
	DisplayName    *string
	Avatar         *string
	Plan           *models.PlanType
	Credits        *int
	TotalGenerated *int
}

func NewAccountService(log *slog.Logger, accounts *repository.AccountRepository, session *repository.SessionRepository, plans *PlanCatalog, now func() time.Time) *AccountService {
	if now == nil {
		now = time.Now
	}
	return &AccountService{
		log:      log,
		accounts: accounts,
		session:  session,
		plans:    plans,
		now:      now,
	}
}

func (s *AccountService) Register(ctx context.Context, email, password, displayName string) (*models.Account, error) {
	email = strings.TrimSpace(email)
	if !govalidator.IsEmail(email) {
		return nil, ErrInvalidEmail
	}
	if burner.IsBurnerEmail(email) {
		return nil, fmt.Errorf("%w: disposable address", ErrInvalidEmail)
	}
	if password == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword(passwordInput(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	now := s.now().UTC()
	stored := repository.StoredAccount{
		Account: models.Account{
			ID:          uuid.NewString(),
			Email:       email,
			DisplayName: displayName,
			Plan:        models.PlanFree,
			Credits:     SignupCredits,
			CreatedAt:   now,
			LastLoginAt: now,
		},
		PasswordHash: string(hash),
	}

	if err := s.accounts.Create(ctx, stored); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	if err := s.session.Start(ctx, stored.Account, uuid.NewString()); err != nil {
		return nil, err
	}

	s.log.Info("account registered", "account_id", stored.ID)
	account := stored.Account
	return &account, nil
}

func (s *AccountService) Login(ctx context.Context, email, password string) (*models.Account, error) {
	email = strings.TrimSpace(email)
	found, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), passwordInput(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	updated, err := s.accounts.Update(ctx, found.ID, func(a *repository.StoredAccount) error {
		a.LastLoginAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	if err := s.session.Start(ctx, updated.Account, uuid.NewString()); err != nil {
		return nil, err
	}

	s.log.Info("account logged in", "account_id", updated.ID)
	account := updated.Account
	return &account, nil
}

func (s *AccountService) Logout(ctx context.Context) error {
	return s.session.Clear(ctx)
}

// CurrentAccount returns the signed-in account, or nil for a guest.
func (s *AccountService) CurrentAccount(ctx context.Context) (*models.Account, error) {
	return s.session.Get(ctx)
}

// CurrentPlan returns the signed-in account with its resolved plan. Guests get a
// nil account and the free plan.
func (s *AccountService) CurrentPlan(ctx context.Context) (*models.Account, models.Plan, error) {
	account, err := s.CurrentAccount(ctx)
	if err != nil {
		return nil, models.Plan{}, err
	}
	if account == nil {
		return nil, s.plans.Resolve(models.PlanFree), nil
	}
	return account, s.plans.Resolve(account.Plan), nil
}

// UpdateAccount merges the update into the stored account and the session
// snapshot. It returns nil when nobody is signed in.
func (s *AccountService) UpdateAccount(ctx context.Context, update AccountUpdate) (*models.Account, error) {
	return s.mutate(ctx, func(a *repository.StoredAccount) error {
		applyUpdate(&a.Account, update)
		return nil
	})
}

// DebitCredit spends one credit and counts one generation. It reports false
// without changing anything when nobody is signed in or the balance is empty.
func (s *AccountService) DebitCredit(ctx context.Context) (bool, error) {
	updated, err := s.mutate(ctx, func(a *repository.StoredAccount) error {
		if a.Credits <= 0 {
			return repository.ErrSkipUpdate
		}
		a.Credits--
		a.TotalGenerated++
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrSkipUpdate) {
			return false, nil
		}
		return false, err
	}
	return updated != nil, nil
}

// ChangePlan moves the signed-in account to planID and grants that plan's credits.
func (s *AccountService) ChangePlan(ctx context.Context, planID models.PlanType) (*models.Account, error) {
	if !s.plans.Exists(planID) {
		return nil, ErrUnknownPlan
	}
	plan := s.plans.Resolve(planID)
	account, err := s.mutate(ctx, func(a *repository.StoredAccount) error {
		a.Plan = plan.ID
		a.Credits += plan.Credits
		return nil
	})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNotLoggedIn
	}
	s.log.Info("plan changed", "account_id", account.ID, "plan", plan.ID, "credits", account.Credits)
	return account, nil
}

func (s *AccountService) mutate(ctx context.Context, fn func(*repository.StoredAccount) error) (*models.Account, error) {
	current, err := s.CurrentAccount(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	updated, err := s.accounts.Update(ctx, current.ID, fn)
	if err != nil {
		if errors.Is(err, repository.ErrSkipUpdate) {
			return nil, err
		}
		if errors.Is(err, repository.ErrNotFound) {
			// The table no longer holds this account; keep the snapshot consistent on its own.
			snapshot := *current
			stored := repository.StoredAccount{Account: snapshot}
			if err := fn(&stored); err != nil {
				return nil, err
			}
			if err := s.session.SaveSnapshot(ctx, stored.Account); err != nil {
				return nil, err
			}
			return &stored.Account, nil
		}
		return nil, fmt.Errorf("update account %s: %w", current.ID, err)
	}

	if err := s.session.SaveSnapshot(ctx, updated.Account); err != nil {
		return nil, err
	}
	account := updated.Account
	return &account, nil
}

func applyUpdate(a *models.Account, u AccountUpdate) {
	if u.DisplayName != nil {
		a.DisplayName = *u.DisplayName
	}
	if u.Avatar != nil {
		a.Avatar = *u.Avatar
	}
	if u.Plan != nil {
		a.Plan = *u.Plan
	}
	if u.Credits != nil {
		a.Credits = max(0, *u.Credits)
	}
	if u.TotalGenerated != nil {
		a.TotalGenerated = *u.TotalGenerated
	}
}

const bcryptMaxInput = 72

// passwordInput returns the bytes handed to bcrypt. bcrypt refuses inputs over
// 72 bytes, so longer passwords are reduced to their SHA-256 digest first.
func passwordInput(password string) []byte {
	if len(password) <= bcryptMaxInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
