package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vincent-petithory/dataurl"

	"github.com/digkill/PixelMuse/internal/models"
	"github.com/digkill/PixelMuse/internal/service"
)

var errBadImage = errors.New("image must be a base64 data uri")

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Plans.List())
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Templates.List())
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	account, err := s.svc.Accounts.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, account)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	account, err := s.svc.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Accounts.Logout(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	Account        *models.Account  `json:"account"`
	Plan           models.Plan      `json:"plan"`
	GuestRemaining *int             `json:"guestRemaining,omitempty"`
	Entitlements   service.Snapshot `json:"entitlements"`
	UsingCustomKey bool             `json:"usingCustomKey"`
	HasBuiltinKey  bool             `json:"hasBuiltinKey"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, plan, err := s.svc.Accounts.CurrentPlan(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := s.svc.Entitlements.Snapshot(ctx, s.svc.Templates.List())
	if err != nil {
		s.writeError(w, err)
		return
	}
	custom, err := s.svc.Credentials.IsUsingCustom(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := meResponse{
		Account:        account,
		Plan:           plan,
		Entitlements:   snap,
		UsingCustomKey: custom,
		HasBuiltinKey:  s.svc.Credentials.HasBuiltin(),
	}
	if account == nil {
		remaining, err := s.svc.Quota.Remaining(ctx)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.GuestRemaining = &remaining
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Only profile fields are editable here; plan and credits change through
// generation and the admin route.
type profileRequest struct {
	DisplayName *string `json:"displayName"`
	Avatar      *string `json:"avatar"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !s.decode(w, r, &req) {
		return
	}
	account, err := s.svc.Accounts.UpdateAccount(r.Context(), service.AccountUpdate{
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
	})
	if err == nil && account == nil {
		err = service.ErrNotLoggedIn
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Generation.Status())
}

type generateRequest struct {
	TemplateID     string                    `json:"templateId"`
	CustomTemplate string                    `json:"customTemplate"`
	Subjects       []string                  `json:"subjects"`
	Scenes         []string                  `json:"scenes"`
	StyleRefs      []string                  `json:"styleRefs"`
	Settings       models.GenerationSettings `json:"settings"`
}

type generationResponse struct {
	Image  string                   `json:"image"`
	Prompt string                   `json:"prompt"`
	Mode   string                   `json:"mode"`
	Cost   models.CostType          `json:"cost"`
	Record *models.GenerationRecord `json:"record,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decode(w, r, &req) {
		return
	}

	subjects, err := decodeUploads(req.Subjects)
	if err != nil {
		s.writeError(w, err)
		return
	}
	scenes, err := decodeUploads(req.Scenes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	styleRefs, err := decodeUploads(req.StyleRefs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.svc.Generation.Generate(r.Context(), service.GenerationRequest{
		TemplateID:     req.TemplateID,
		CustomTemplate: req.CustomTemplate,
		Subjects:       subjects,
		Scenes:         scenes,
		StyleRefs:      styleRefs,
		Settings:       req.Settings,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toGenerationResponse(result))
}

type editRequest struct {
	Instruction string             `json:"instruction"`
	AspectRatio models.AspectRatio `json:"aspectRatio"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.svc.Generation.Edit(r.Context(), service.EditRequest{
		Instruction: req.Instruction,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toGenerationResponse(result))
}

type historyResponse struct {
	Images  []string `json:"images"`
	Current string   `json:"current,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	resp := historyResponse{Images: s.svc.Generation.Gallery()}
	if current := s.svc.Generation.Current(); current != nil {
		resp.Current = current.DataURI()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid index"})
		return
	}
	if err := s.svc.Generation.Select(index); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.History.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

func (s *Server) handleSaveCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Credentials.SaveCustom(r.Context(), req.APIKey); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCredential(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Credentials.ClearCustom(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidateCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.svc.Credentials.Validate(r.Context(), req.APIKey))
}

type changePlanRequest struct {
	Plan models.PlanType `json:"plan"`
}

func (s *Server) handleChangePlan(w http.ResponseWriter, r *http.Request) {
	var req changePlanRequest
	if !s.decode(w, r, &req) {
		return
	}
	account, err := s.svc.Accounts.ChangePlan(r.Context(), req.Plan)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func toGenerationResponse(result *service.GenerationResult) generationResponse {
	return generationResponse{
		Image:  result.DataURI,
		Prompt: result.Prompt,
		Mode:   result.Mode.String(),
		Cost:   result.Cost,
		Record: result.Record,
	}
}

func decodeUploads(uris []string) ([]models.UploadedImage, error) {
	out := make([]models.UploadedImage, 0, len(uris))
	for i, uri := range uris {
		img, err := decodeImage(uri)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d", err, i)
		}
		out = append(out, img)
	}
	return out, nil
}

func decodeImage(uri string) (models.UploadedImage, error) {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, "data:") {
		return models.UploadedImage{}, errBadImage
	}
	decoded, err := dataurl.DecodeString(uri)
	if err != nil {
		return models.UploadedImage{}, errBadImage
	}
	mime := decoded.MediaType.ContentType()
	if !strings.HasPrefix(mime, "image/") {
		return models.UploadedImage{}, errBadImage
	}
	return models.UploadedImage{
		ID:       uuid.NewString(),
		MimeType: mime,
		Data:     base64.StdEncoding.EncodeToString(decoded.Data),
	}, nil
}
