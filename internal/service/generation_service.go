package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/digkill/PixelMuse/internal/gemini"
	"github.com/digkill/PixelMuse/internal/models"
)

const (
	styleFallbackPrompt = "A high quality image based on the reference."
	styleEmptyPrompt    = "A high quality image"
)

// ModelService is the remote model collaborator used by the generation flows.
type ModelService interface {
	FusePrompt(ctx context.Context, apiKey string, req gemini.FusionRequest) (string, error)
	Synthesize(ctx context.Context, apiKey string, req gemini.SynthesisRequest) (*gemini.Image, error)
	Edit(ctx context.Context, apiKey string, req gemini.EditRequest) (*gemini.Image, error)
}

type Stage string

const (
	StageIdle                Stage = "idle"
	StageCheckingEntitlement Stage = "checking_entitlement"
	StageFusingPrompt        Stage = "fusing_prompt"
	StageSynthesizing        Stage = "synthesizing"
	StageEditing             Stage = "editing"
	StageDebiting            Stage = "debiting"
	StageError               Stage = "error"
)

type Status struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message,omitempty"`
	Busy    bool   `json:"busy"`
}

type GenerationRequest struct {
	TemplateID     string
	CustomTemplate string
	Subjects       []models.UploadedImage
	Scenes         []models.UploadedImage
	StyleRefs      []models.UploadedImage
	Settings       models.GenerationSettings
}

type EditRequest struct {
	Instruction string
	AspectRatio models.AspectRatio
}

type GenerationResult struct {
	Image   *gemini.Image
	DataURI string
	Prompt  string
	Mode    gemini.Mode
	Cost    models.CostType
	Record  *models.GenerationRecord
}

// GenerationService runs the generate and edit flows. Only one flow runs at a
// time; the session gallery and current image live in memory.
type GenerationService struct {
	log         *slog.Logger
	accounts    *AccountService
	quota       *GuestQuota
	credentials *CredentialService
	templates   *TemplateCatalog
	history     *HistoryService
	model       ModelService

	mu       sync.Mutex
	running  bool
	status   Status
	gallery  []*gemini.Image
	current  *gemini.Image
	settings models.GenerationSettings
}

func NewGenerationService(log *slog.Logger, accounts *AccountService, quota *GuestQuota, credentials *CredentialService, templates *TemplateCatalog, history *HistoryService, model ModelService) *GenerationService {
	return &GenerationService{
		log:         log,
		accounts:    accounts,
		quota:       quota,
		credentials: credentials,
		templates:   templates,
		history:     history,
		model:       model,
		status:      Status{Stage: StageIdle},
		settings:    models.GenerationSettings{AspectRatio: models.AspectSquare, Resolution: models.Resolution1K},
	}
}

func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	result, err := s.generate(ctx, req)
	s.finish(err)
	return result, err
}

func (s *GenerationService) generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	started := time.Now()
	settings, err := normalizeSettings(req.Settings)
	if err != nil {
		return nil, err
	}
	if _, ok := s.templates.Get(req.TemplateID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, req.TemplateID)
	}

	s.setStage(StageCheckingEntitlement, "")
	apiKey, usingCustom, err := s.credentials.Active(ctx)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, ErrNoCredential
	}

	account, plan, err := s.accounts.CurrentPlan(ctx)
	if err != nil {
		return nil, err
	}

	if !usingCustom {
		if account != nil {
			if account.Credits <= 0 {
				return nil, ErrOutOfCredits
			}
		} else {
			remaining, err := s.quota.Remaining(ctx)
			if err != nil {
				return nil, err
			}
			if remaining <= 0 {
				return nil, ErrGuestQuotaExhausted
			}
		}

		if !canUseResolution(account, plan, settings.Resolution) {
			return nil, ErrResolutionLocked
		}
		if !canUseTemplate(account, plan, req.TemplateID) {
			return nil, ErrTemplateLocked
		}
		limit := maxUploads(account, plan)
		if len(req.Subjects) > limit || len(req.Scenes) > limit || len(req.StyleRefs) > limit {
			return nil, fmt.Errorf("%w: at most %d per group", ErrUploadLimit, limit)
		}
	}

	baseTemplate := s.templates.Script(req.TemplateID, req.CustomTemplate)
	if len(req.StyleRefs) == 0 && strings.TrimSpace(baseTemplate) == "" {
		return nil, ErrEmptyComposition
	}

	mode := gemini.ModeTemplateFusion
	if len(req.StyleRefs) > 0 {
		mode = gemini.ModeStyleReference
	}
	fusion := gemini.FusionRequest{
		Mode:         mode,
		Subjects:     toInputs(req.Subjects),
		Scenes:       toInputs(req.Scenes),
		StyleRefs:    toInputs(req.StyleRefs),
		Instruction:  strings.TrimSpace(settings.Prompt),
		BaseTemplate: baseTemplate,
		Giant:        req.TemplateID == TemplateGiant,
	}

	s.setStage(StageFusingPrompt, "")
	prompt := s.fusePrompt(ctx, apiKey, fusion)

	s.setStage(StageSynthesizing, "")
	image, err := s.model.Synthesize(ctx, apiKey, gemini.SynthesisRequest{
		Prompt:      prompt,
		AspectRatio: string(settings.AspectRatio),
		Resolution:  string(settings.Resolution),
		References: gemini.References{
			Identity:    first(fusion.Subjects),
			Background:  first(fusion.Scenes),
			Composition: first(fusion.StyleRefs),
		},
	})
	if err != nil {
		s.log.Error("synthesis failed", "err", err, "template", req.TemplateID, "mode", mode.String())
		return nil, err
	}

	cost, err := s.charge(ctx, account, usingCustom)
	if err != nil {
		s.log.Error("charge failed, returning result uncharged", "err", err)
	}

	result := &GenerationResult{
		Image:   image,
		DataURI: image.DataURI(),
		Prompt:  prompt,
		Mode:    mode,
		Cost:    cost,
	}
	s.remember(image, settings)
	result.Record = s.saveRecord(ctx, RecordInput{
		TemplateName: s.templates.Label(req.TemplateID),
		Image:        image,
		Prompt:       prompt,
		Settings:     settings,
		Cost:         cost,
	})

	s.log.Info("image generated",
		"template", req.TemplateID,
		"mode", mode.String(),
		"cost", cost,
		"resolution", settings.Resolution,
		"duration", time.Since(started).String(),
	)
	return result, nil
}

// Edit applies an instruction to the current image.
func (s *GenerationService) Edit(ctx context.Context, req EditRequest) (*GenerationResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	result, err := s.edit(ctx, req)
	s.finish(err)
	return result, err
}

func (s *GenerationService) edit(ctx context.Context, req EditRequest) (*GenerationResult, error) {
	started := time.Now()
	s.mu.Lock()
	current := s.current
	settings := s.settings
	s.mu.Unlock()

	if current == nil {
		return nil, ErrNothingToEdit
	}
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return nil, ErrEmptyInstruction
	}
	if req.AspectRatio != "" {
		if !req.AspectRatio.Valid() {
			return nil, fmt.Errorf("%w: aspect ratio %q", ErrInvalidSettings, req.AspectRatio)
		}
		settings.AspectRatio = req.AspectRatio
	}
	settings.Prompt = instruction

	s.setStage(StageCheckingEntitlement, "")
	apiKey, usingCustom, err := s.credentials.Active(ctx)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, ErrNoCredential
	}

	account, plan, err := s.accounts.CurrentPlan(ctx)
	if err != nil {
		return nil, err
	}
	if !usingCustom {
		if account == nil {
			return nil, ErrEditRequiresLogin
		}
		if !plan.EditEnabled {
			return nil, ErrEditRequiresUpgrade
		}
		if account.Credits <= 0 {
			return nil, ErrOutOfCredits
		}
	}

	s.setStage(StageEditing, "")
	image, err := s.model.Edit(ctx, apiKey, gemini.EditRequest{
		Image:       gemini.ImageInput{MimeType: current.MimeType, Data: current.Base64()},
		Instruction: instruction,
		AspectRatio: string(settings.AspectRatio),
	})
	if err != nil {
		s.log.Error("edit failed", "err", err)
		return nil, err
	}

	cost, err := s.charge(ctx, account, usingCustom)
	if err != nil {
		s.log.Error("charge failed, returning result uncharged", "err", err)
	}

	result := &GenerationResult{
		Image:   image,
		DataURI: image.DataURI(),
		Prompt:  instruction,
		Mode:    gemini.ModeTemplateFusion,
		Cost:    cost,
	}
	s.remember(image, settings)
	result.Record = s.saveRecord(ctx, RecordInput{
		TemplateName: "Edit",
		Image:        image,
		Prompt:       instruction,
		Settings:     settings,
		Cost:         cost,
	})

	s.log.Info("image edited", "cost", cost, "duration", time.Since(started).String())
	return result, nil
}

// fusePrompt never fails: any error or empty answer degrades to the base template.
func (s *GenerationService) fusePrompt(ctx context.Context, apiKey string, req gemini.FusionRequest) string {
	fallback := req.BaseTemplate
	if req.Mode == gemini.ModeStyleReference {
		fallback = styleFallbackPrompt
	}

	if req.Mode == gemini.ModeTemplateFusion && len(req.Subjects) == 0 && len(req.Scenes) == 0 && req.Instruction == "" {
		return req.BaseTemplate
	}

	prompt, err := s.model.FusePrompt(ctx, apiKey, req)
	if err != nil {
		s.log.Warn("prompt fusion failed, using fallback", "err", err, "mode", req.Mode.String())
		return fallback
	}
	if prompt == "" {
		s.log.Warn("prompt fusion returned no text, using fallback", "mode", req.Mode.String())
		if req.Mode == gemini.ModeStyleReference {
			return styleEmptyPrompt
		}
		return req.BaseTemplate
	}
	return prompt
}

// charge spends the unit of entitlement for a finished flow. It runs only
// after the model call succeeded. The cost type is returned even on error.
func (s *GenerationService) charge(ctx context.Context, account *models.Account, usingCustom bool) (models.CostType, error) {
	if usingCustom {
		return models.CostTypeCustom, nil
	}
	s.setStage(StageDebiting, "")
	if account != nil {
		ok, err := s.accounts.DebitCredit(ctx)
		if err != nil {
			return models.CostTypeCredit, fmt.Errorf("debit credit: %w", err)
		}
		if !ok {
			s.log.Warn("credit debit skipped, balance already empty", "account_id", account.ID)
		}
		return models.CostTypeCredit, nil
	}
	ok, err := s.quota.Consume(ctx)
	if err != nil {
		return models.CostTypeGuest, err
	}
	if !ok {
		s.log.Warn("guest quota already exhausted at debit")
	}
	return models.CostTypeGuest, nil
}

func (s *GenerationService) saveRecord(ctx context.Context, in RecordInput) *models.GenerationRecord {
	account, err := s.accounts.CurrentAccount(ctx)
	if err != nil {
		s.log.Warn("failed to read session for record", "err", err)
	}
	in.Account = account
	record, err := s.history.Save(ctx, in)
	if err != nil {
		return nil
	}
	return &record
}

func (s *GenerationService) remember(image *gemini.Image, settings models.GenerationSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gallery = append([]*gemini.Image{image}, s.gallery...)
	s.current = image
	s.settings = settings
}

// Gallery returns this session's results as data URIs, newest first.
func (s *GenerationService) Gallery() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.gallery))
	for _, img := range s.gallery {
		out = append(out, img.DataURI())
	}
	return out
}

// Current returns the image the next edit applies to, or nil.
func (s *GenerationService) Current() *gemini.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Select makes the gallery entry at index the edit target.
func (s *GenerationService) Select(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.gallery) {
		return ErrNothingToEdit
	}
	s.current = s.gallery[index]
	return nil
}

func (s *GenerationService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *GenerationService) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrBusy
	}
	s.running = true
	s.status = Status{Stage: StageCheckingEntitlement, Busy: true}
	return nil
}

func (s *GenerationService) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if err != nil {
		s.status = Status{Stage: StageError, Message: err.Error()}
		return
	}
	s.status = Status{Stage: StageIdle}
}

func (s *GenerationService) setStage(stage Stage, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{Stage: stage, Message: message, Busy: s.running}
}

func normalizeSettings(in models.GenerationSettings) (models.GenerationSettings, error) {
	out := in
	if out.AspectRatio == "" {
		out.AspectRatio = models.AspectSquare
	}
	if out.Resolution == "" {
		out.Resolution = models.Resolution1K
	}
	if !out.AspectRatio.Valid() {
		return out, fmt.Errorf("%w: aspect ratio %q", ErrInvalidSettings, out.AspectRatio)
	}
	if out.Resolution.Rank() < 0 {
		return out, fmt.Errorf("%w: resolution %q", ErrInvalidSettings, out.Resolution)
	}
	return out, nil
}

func toInputs(images []models.UploadedImage) []gemini.ImageInput {
	if len(images) == 0 {
		return nil
	}
	out := make([]gemini.ImageInput, 0, len(images))
	for _, img := range images {
		out = append(out, gemini.ImageInput{MimeType: img.MimeType, Data: img.Data})
	}
	return out
}

func first(inputs []gemini.ImageInput) *gemini.ImageInput {
	if len(inputs) == 0 {
		return nil
	}
	in := inputs[0]
	return &in
}

// IsServiceError reports whether err came from the model service rather than a local gate.
func IsServiceError(err error) bool {
	var refusal *gemini.RefusalError
	var interrupted *gemini.InterruptedError
	var apiErr *gemini.APIError
	return errors.Is(err, gemini.ErrSafetyBlocked) ||
		errors.Is(err, gemini.ErrNoResult) ||
		errors.As(err, &refusal) ||
		errors.As(err, &interrupted) ||
		errors.As(err, &apiErr)
}
