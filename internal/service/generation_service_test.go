package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/digkill/PixelMuse/internal/gemini"
	"github.com/digkill/PixelMuse/internal/models"
	"github.com/digkill/PixelMuse/internal/repository"
)

func giantRequest() GenerationRequest {
	return GenerationRequest{
		TemplateID: "giant",
		Settings:   models.GenerationSettings{AspectRatio: models.AspectSquare, Resolution: models.Resolution1K},
	}
}

func TestGenerateGuestScenario(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()

	result, err := h.generation.Generate(ctx, giantRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Cost != models.CostTypeGuest {
		t.Fatalf("cost = %s", result.Cost)
	}
	if !strings.HasPrefix(result.DataURI, "data:image/png;base64,") {
		t.Fatalf("data uri = %q", result.DataURI)
	}

	remaining, err := h.quota.Remaining(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 1 {
		t.Fatalf("remaining = %d, want 1", remaining)
	}
	usage, _ := h.quota.CurrentUsage(ctx)
	if usage.Count != 1 {
		t.Fatalf("usage = %+v", usage)
	}

	_, synth, _ := h.model.calls()
	if synth != 1 {
		t.Fatalf("synthesize calls = %d", synth)
	}
	if h.model.lastSynth.Resolution != "1K" || h.model.lastSynth.AspectRatio != "1:1" {
		t.Fatalf("synthesis request = %+v", h.model.lastSynth)
	}
	if h.model.lastKey != "builtin" {
		t.Fatalf("key = %q", h.model.lastKey)
	}
}

func TestGenerateSkipsFusionForBareTemplate(t *testing.T) {
	h := newHarness(t, "builtin")
	result, err := h.generation.Generate(context.Background(), giantRequest())
	if err != nil {
		t.Fatal(err)
	}
	fuse, _, _ := h.model.calls()
	if fuse != 0 {
		t.Fatalf("fusion calls = %d, want 0", fuse)
	}
	want := NewTemplateCatalog().Script("giant", "")
	if result.Prompt != want || h.model.lastSynth.Prompt != want {
		t.Fatalf("prompt = %q", result.Prompt)
	}
}

func TestGenerateOutOfCredits(t *testing.T) {
	h := newHarness(t, "builtin")
	h.signIn(t, models.PlanFree, 0)

	_, err := h.generation.Generate(context.Background(), giantRequest())
	if !errors.Is(err, ErrOutOfCredits) {
		t.Fatalf("err = %v, want ErrOutOfCredits", err)
	}
	if fuse, synth, _ := h.model.calls(); fuse+synth != 0 {
		t.Fatalf("model called: fuse=%d synth=%d", fuse, synth)
	}
	current, _ := h.accounts.CurrentAccount(context.Background())
	if current.Credits != 0 {
		t.Fatalf("credits = %d", current.Credits)
	}
	if Remediation(err) != RemedyUpgrade {
		t.Fatalf("remedy = %q", Remediation(err))
	}
}

func TestGenerateTemplateLockedForBasic(t *testing.T) {
	h := newHarness(t, "builtin")
	h.signIn(t, models.PlanBasic, 10)

	req := giantRequest()
	req.TemplateID = TemplateCustom
	req.CustomTemplate = "a castle at dawn"
	_, err := h.generation.Generate(context.Background(), req)
	if !errors.Is(err, ErrTemplateLocked) {
		t.Fatalf("err = %v, want ErrTemplateLocked", err)
	}
	if _, synth, _ := h.model.calls(); synth != 0 {
		t.Fatal("model called")
	}
}

func TestGenerateEmptyComposition(t *testing.T) {
	h := newHarness(t, "builtin")
	h.signIn(t, models.PlanPro, 10)
	ctx := context.Background()

	req := giantRequest()
	req.TemplateID = TemplateCustom
	req.CustomTemplate = "   "
	_, err := h.generation.Generate(ctx, req)
	if !errors.Is(err, ErrEmptyComposition) {
		t.Fatalf("err = %v, want ErrEmptyComposition", err)
	}
	current, _ := h.accounts.CurrentAccount(ctx)
	if current.Credits != 10 || current.TotalGenerated != 0 {
		t.Fatalf("account mutated: %+v", current)
	}
	if fuse, synth, _ := h.model.calls(); fuse+synth != 0 {
		t.Fatal("model called")
	}
}

func TestGenerateCustomCredentialBypassesGates(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()
	h.signIn(t, models.PlanFree, 0)
	if err := h.credentials.SaveCustom(ctx, "own-key"); err != nil {
		t.Fatal(err)
	}

	req := giantRequest()
	req.TemplateID = "ski"
	req.Settings.Resolution = models.Resolution4K
	req.Subjects = upload(3)
	result, err := h.generation.Generate(ctx, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Cost != models.CostTypeCustom {
		t.Fatalf("cost = %s", result.Cost)
	}
	if h.model.lastKey != "own-key" || h.model.lastSynth.Resolution != "4K" {
		t.Fatalf("key=%q synth=%+v", h.model.lastKey, h.model.lastSynth)
	}
	current, _ := h.accounts.CurrentAccount(ctx)
	if current.Credits != 0 || current.TotalGenerated != 0 {
		t.Fatalf("account charged: %+v", current)
	}
}

func TestGenerateNoCredential(t *testing.T) {
	h := newHarness(t, "")
	_, err := h.generation.Generate(context.Background(), giantRequest())
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("err = %v", err)
	}
	if Remediation(err) != RemedyOwnKey {
		t.Fatalf("remedy = %q", Remediation(err))
	}
}

func TestGenerateGuestQuotaExhausted(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()
	for i := 0; i < GuestDailyLimit; i++ {
		if _, err := h.generation.Generate(ctx, giantRequest()); err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
	}
	_, err := h.generation.Generate(ctx, giantRequest())
	if !errors.Is(err, ErrGuestQuotaExhausted) {
		t.Fatalf("err = %v", err)
	}
	if Remediation(err) != RemedyLoginOrOwnKey {
		t.Fatalf("remedy = %q", Remediation(err))
	}
}

func TestGenerateFeatureGates(t *testing.T) {
	tests := []struct {
		name   string
		plan   models.PlanType
		guest  bool
		modify func(*GenerationRequest)
		want   error
	}{
		{name: "guest 2K", guest: true, modify: func(r *GenerationRequest) { r.Settings.Resolution = models.Resolution2K }, want: ErrResolutionLocked},
		{name: "basic 4K", plan: models.PlanBasic, modify: func(r *GenerationRequest) { r.Settings.Resolution = models.Resolution4K }, want: ErrResolutionLocked},
		{name: "free locked template", plan: models.PlanFree, modify: func(r *GenerationRequest) { r.TemplateID = "beach" }, want: ErrTemplateLocked},
		{name: "guest two subjects", guest: true, modify: func(r *GenerationRequest) { r.Subjects = upload(2) }, want: ErrUploadLimit},
		{name: "basic three scenes", plan: models.PlanBasic, modify: func(r *GenerationRequest) { r.Scenes = upload(3) }, want: ErrUploadLimit},
		{name: "bad aspect", plan: models.PlanPro, modify: func(r *GenerationRequest) { r.Settings.AspectRatio = "2:1" }, want: ErrInvalidSettings},
		{name: "unknown template", plan: models.PlanPro, modify: func(r *GenerationRequest) { r.TemplateID = "nope" }, want: ErrUnknownTemplate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "builtin")
			if !tt.guest {
				h.signIn(t, tt.plan, 5)
			}
			req := giantRequest()
			tt.modify(&req)
			_, err := h.generation.Generate(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if _, synth, _ := h.model.calls(); synth != 0 {
				t.Fatal("model called")
			}
		})
	}
}

func TestGenerateDebitsAfterSuccess(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()
	h.signIn(t, models.PlanBasic, 3)

	req := giantRequest()
	req.Subjects = upload(1)
	result, err := h.generation.Generate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if result.Cost != models.CostTypeCredit {
		t.Fatalf("cost = %s", result.Cost)
	}
	current, _ := h.accounts.CurrentAccount(ctx)
	if current.Credits != 2 || current.TotalGenerated != 1 {
		t.Fatalf("account = %+v", current)
	}

	records, err := h.history.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].UserID != current.ID || records[0].Cost != models.CostTypeCredit {
		t.Fatalf("records = %+v", records)
	}
	if records[0].Prompt != "fused prompt" || records[0].TemplateName != "Giant composition" {
		t.Fatalf("record = %+v", records[0])
	}
}

func TestGenerateSynthesisFailureDoesNotCharge(t *testing.T) {
	failures := []error{
		gemini.ErrSafetyBlocked,
		gemini.ErrNoResult,
		&gemini.RefusalError{Text: "I can't do that"},
		&gemini.InterruptedError{Reason: "SAFETY"},
	}
	for _, failure := range failures {
		t.Run(failure.Error(), func(t *testing.T) {
			h := newHarness(t, "builtin")
			ctx := context.Background()
			h.signIn(t, models.PlanBasic, 3)
			h.model.synthErr = failure

			_, err := h.generation.Generate(ctx, giantRequest())
			if !errors.Is(err, failure) {
				t.Fatalf("err = %v, want %v", err, failure)
			}
			if !IsServiceError(err) {
				t.Fatal("not classified as service error")
			}
			current, _ := h.accounts.CurrentAccount(ctx)
			if current.Credits != 3 || current.TotalGenerated != 0 {
				t.Fatalf("charged on failure: %+v", current)
			}
			status := h.generation.Status()
			if status.Stage != StageError || status.Busy {
				t.Fatalf("status = %+v", status)
			}
			if len(h.generation.Gallery()) != 0 {
				t.Fatal("failed result added to gallery")
			}
		})
	}
}

func TestGenerateGuestFailureKeepsQuota(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()
	h.model.synthErr = gemini.ErrNoResult

	if _, err := h.generation.Generate(ctx, giantRequest()); err == nil {
		t.Fatal("expected error")
	}
	remaining, _ := h.quota.Remaining(ctx)
	if remaining != GuestDailyLimit {
		t.Fatalf("remaining = %d", remaining)
	}
}

func TestGenerateFusionFallsBackToTemplate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		prompt string
		err    error
	}{
		{name: "error", err: errors.New("boom")},
		{name: "empty", prompt: ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "builtin")
			h.model.fusePrompt = tt.prompt
			h.model.fuseErr = tt.err

			req := giantRequest()
			req.Settings.Prompt = "wearing a red scarf"
			result, err := h.generation.Generate(context.Background(), req)
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			want := NewTemplateCatalog().Script("giant", "")
			if result.Prompt != want {
				t.Fatalf("prompt = %q, want template", result.Prompt)
			}
			if !h.model.lastFusion.Giant || h.model.lastFusion.Instruction != "wearing a red scarf" {
				t.Fatalf("fusion request = %+v", h.model.lastFusion)
			}
		})
	}
}

func TestGenerateStyleReferenceMode(t *testing.T) {
	h := newHarness(t, "builtin")
	h.signIn(t, models.PlanPro, 5)
	h.model.fuseErr = errors.New("boom")

	req := giantRequest()
	req.TemplateID = TemplateCustom
	req.CustomTemplate = ""
	req.StyleRefs = upload(1)
	req.Scenes = upload(1)
	result, err := h.generation.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Mode != gemini.ModeStyleReference || h.model.lastFusion.Mode != gemini.ModeStyleReference {
		t.Fatalf("mode = %v", result.Mode)
	}
	if result.Prompt != styleFallbackPrompt {
		t.Fatalf("prompt = %q", result.Prompt)
	}
	refs := h.model.lastSynth.References
	if refs.Composition == nil || refs.Background == nil || refs.Identity != nil {
		t.Fatalf("references = %+v", refs)
	}
}

func TestEditGates(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()

	if _, err := h.generation.Edit(ctx, EditRequest{Instruction: "brighter"}); !errors.Is(err, ErrNothingToEdit) {
		t.Fatalf("no image err = %v", err)
	}

	if _, err := h.generation.Generate(ctx, giantRequest()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.generation.Edit(ctx, EditRequest{Instruction: "  "}); !errors.Is(err, ErrEmptyInstruction) {
		t.Fatalf("empty instruction err = %v", err)
	}
	if _, err := h.generation.Edit(ctx, EditRequest{Instruction: "brighter"}); !errors.Is(err, ErrEditRequiresLogin) {
		t.Fatalf("guest err = %v", err)
	}

	h.signIn(t, models.PlanFree, 5)
	if _, err := h.generation.Edit(ctx, EditRequest{Instruction: "brighter"}); !errors.Is(err, ErrEditRequiresUpgrade) {
		t.Fatalf("free err = %v", err)
	}
	if _, _, edits := h.model.calls(); edits != 0 {
		t.Fatal("edit model called")
	}
}

func TestEditDebitsAndRecords(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()
	h.signIn(t, models.PlanBasic, 5)

	if _, err := h.generation.Generate(ctx, giantRequest()); err != nil {
		t.Fatal(err)
	}
	result, err := h.generation.Edit(ctx, EditRequest{Instruction: "make it night", AspectRatio: models.AspectWide})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if result.Cost != models.CostTypeCredit {
		t.Fatalf("cost = %s", result.Cost)
	}
	if h.model.lastEdit.Image.Data != "c3ludGg=" || h.model.lastEdit.AspectRatio != "16:9" {
		t.Fatalf("edit request = %+v", h.model.lastEdit)
	}

	current, _ := h.accounts.CurrentAccount(ctx)
	if current.Credits != 3 || current.TotalGenerated != 2 {
		t.Fatalf("account = %+v", current)
	}
	gallery := h.generation.Gallery()
	if len(gallery) != 2 || gallery[0] != result.DataURI {
		t.Fatalf("gallery = %v", gallery)
	}
	records, _ := h.history.List(ctx)
	if len(records) != 2 || records[0].TemplateName != "Edit" {
		t.Fatalf("records = %+v", records)
	}
}

func TestEditRefusalDoesNotCharge(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()
	h.signIn(t, models.PlanPro, 5)
	if _, err := h.generation.Generate(ctx, giantRequest()); err != nil {
		t.Fatal(err)
	}
	h.model.editErr = &gemini.RefusalError{Text: "no"}

	_, err := h.generation.Edit(ctx, EditRequest{Instruction: "remove the car"})
	var refusal *gemini.RefusalError
	if !errors.As(err, &refusal) {
		t.Fatalf("err = %v", err)
	}
	current, _ := h.accounts.CurrentAccount(ctx)
	if current.Credits != 4 {
		t.Fatalf("credits = %d, want 4", current.Credits)
	}
}

func TestEditWithCustomCredentialAsGuest(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	if err := h.credentials.SaveCustom(ctx, "own-key"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.generation.Generate(ctx, giantRequest()); err != nil {
		t.Fatal(err)
	}
	result, err := h.generation.Edit(ctx, EditRequest{Instruction: "add snow"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if result.Cost != models.CostTypeCustom {
		t.Fatalf("cost = %s", result.Cost)
	}
}

func TestSelectChangesEditTarget(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()
	if _, err := h.generation.Generate(ctx, giantRequest()); err != nil {
		t.Fatal(err)
	}
	if err := h.generation.Select(0); err != nil {
		t.Fatal(err)
	}
	if err := h.generation.Select(5); !errors.Is(err, ErrNothingToEdit) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateRejectsConcurrentFlow(t *testing.T) {
	h := newHarness(t, "builtin")
	h.model.block = make(chan struct{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := h.generation.Generate(ctx, giantRequest())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.generation.Status().Stage != StageSynthesizing {
		if time.Now().After(deadline) {
			t.Fatal("flow never reached synthesis")
		}
		time.Sleep(time.Millisecond)
	}
	if !h.generation.Status().Busy {
		t.Fatal("status not busy")
	}

	if _, err := h.generation.Generate(ctx, giantRequest()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second generate err = %v", err)
	}
	if _, err := h.generation.Edit(ctx, EditRequest{Instruction: "x"}); !errors.Is(err, ErrBusy) {
		t.Fatalf("edit err = %v", err)
	}

	close(h.model.block)
	if err := <-done; err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if status := h.generation.Status(); status.Stage != StageIdle || status.Busy {
		t.Fatalf("status = %+v", status)
	}
}

func TestEditWithoutCreditsIsRejected(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()
	h.signIn(t, models.PlanBasic, 1)

	if _, err := h.generation.Generate(ctx, giantRequest()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.generation.Edit(ctx, EditRequest{Instruction: "brighter"}); !errors.Is(err, ErrOutOfCredits) {
		t.Fatalf("err = %v", err)
	}
	if _, _, edits := h.model.calls(); edits != 0 {
		t.Fatal("edit model called without credits")
	}
}

func TestChargeFailureKeepsResult(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()
	account := h.signIn(t, models.PlanBasic, 3)
	h.store.failUpdates(repository.KeyAllAccounts, errors.New("disk full"))

	result, err := h.generation.Generate(ctx, giantRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Cost != models.CostTypeCredit || result.Image == nil {
		t.Fatalf("result = %+v", result)
	}
	if h.generation.Current() != result.Image {
		t.Fatal("result not remembered")
	}
	current, _ := h.accounts.CurrentAccount(ctx)
	if current.Credits != account.Credits {
		t.Fatalf("credits = %d, want %d", current.Credits, account.Credits)
	}
	if status := h.generation.Status(); status.Stage != StageIdle {
		t.Fatalf("status = %+v", status)
	}
}

func TestGuestConsumeFailureKeepsResult(t *testing.T) {
	h := newHarness(t, "builtin")
	ctx := context.Background()
	h.store.failUpdates(repository.KeyGuestUsage, errors.New("disk full"))

	result, err := h.generation.Generate(ctx, giantRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Cost != models.CostTypeGuest {
		t.Fatalf("cost = %s", result.Cost)
	}
	if remaining, _ := h.quota.Remaining(ctx); remaining != GuestDailyLimit {
		t.Fatalf("remaining = %d", remaining)
	}
}

func TestStyleFusionWithoutTextUsesGenericPrompt(t *testing.T) {
	h := newHarness(t, "builtin")
	h.signIn(t, models.PlanPro, 5)
	h.model.fusePrompt = ""

	req := giantRequest()
	req.TemplateID = TemplateCustom
	req.StyleRefs = upload(1)
	result, err := h.generation.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Prompt != styleEmptyPrompt {
		t.Fatalf("prompt = %q", result.Prompt)
	}
	if h.model.lastSynth.Prompt != styleEmptyPrompt {
		t.Fatalf("synthesis prompt = %q", h.model.lastSynth.Prompt)
	}
}
