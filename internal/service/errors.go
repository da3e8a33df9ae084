package service

import "errors"

// Configuration errors.
var ErrNoCredential = errors.New("no API credential configured")

// Entitlement errors.
var (
	ErrOutOfCredits        = errors.New("no credits left, upgrade the plan")
	ErrGuestQuotaExhausted = errors.New("daily guest quota exhausted")
	ErrResolutionLocked    = errors.New("resolution not available on the current plan")
	ErrTemplateLocked      = errors.New("template not available on the current plan")
	ErrUploadLimit         = errors.New("too many images for the current plan")
	ErrEditRequiresLogin   = errors.New("editing requires login")
	ErrEditRequiresUpgrade = errors.New("editing requires the basic plan or above")
)

// Validation errors.
var (
	ErrEmptyComposition = errors.New("enter a custom composition prompt or upload a style reference image")
	ErrInvalidSettings  = errors.New("invalid generation settings")
	ErrNothingToEdit    = errors.New("no generated image to edit")
	ErrEmptyInstruction = errors.New("edit instruction is empty")
	ErrUnknownTemplate  = errors.New("unknown template")
	ErrBusy             = errors.New("another generation is in progress")
)

// Account errors.
var (
	ErrDuplicateEmail     = errors.New("email already registered, log in instead")
	ErrInvalidCredentials = errors.New("wrong email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrNotLoggedIn        = errors.New("not logged in")
	ErrUnknownPlan        = errors.New("unknown plan")
)

type Remedy string

const (
	RemedyNone          Remedy = ""
	RemedyLogin         Remedy = "login"
	RemedyUpgrade       Remedy = "upgrade"
	RemedyOwnKey        Remedy = "configure_key"
	RemedyLoginOrOwnKey Remedy = "login_or_configure_key"
)

// Remediation suggests what the user can do about an entitlement or configuration error.
func Remediation(err error) Remedy {
	switch {
	case errors.Is(err, ErrNoCredential):
		return RemedyOwnKey
	case errors.Is(err, ErrGuestQuotaExhausted):
		return RemedyLoginOrOwnKey
	case errors.Is(err, ErrEditRequiresLogin):
		return RemedyLogin
	case errors.Is(err, ErrOutOfCredits),
		errors.Is(err, ErrResolutionLocked),
		errors.Is(err, ErrTemplateLocked),
		errors.Is(err, ErrUploadLimit),
		errors.Is(err, ErrEditRequiresUpgrade):
		return RemedyUpgrade
	default:
		return RemedyNone
	}
}
