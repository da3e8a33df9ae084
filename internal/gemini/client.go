package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com"
	defaultAPIVersion = "v1beta"
	defaultTextModel  = "gemini-3-pro-preview"
	defaultImageModel = "gemini-3-pro-image-preview"
)

type Options struct {
	BaseURL    string
	APIVersion string
	TextModel  string
	ImageModel string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the Generative Language REST API. The API key is passed per
// call because the active credential can change between requests.
type Client struct {
	baseURL    string
	apiVersion string
	textModel  string
	imageModel string
	httpClient *http.Client
	log        *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	textModel := opts.TextModel
	if textModel == "" {
		textModel = defaultTextModel
	}
	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		textModel:  textModel,
		imageModel: imageModel,
		httpClient: httpClient,
		log:        log,
	}
}

// FusePrompt asks the text model to merge the labeled uploads and the template
// into a single generation prompt. An empty string means the model produced no text.
func (c *Client) FusePrompt(ctx context.Context, apiKey string, req FusionRequest) (string, error) {
	payload := generateContentRequest{
		Contents:          []content{{Role: "user", Parts: fusionParts(req)}},
		SystemInstruction: &content{Parts: []part{{Text: systemInstruction(req)}}},
		GenerationConfig: generationConfig{
			ThinkingConfig: &thinkingConfig{ThinkingBudget: 1024},
		},
	}

	resp, err := c.generateContent(ctx, apiKey, c.textModel, payload)
	if err != nil && isUnknownFieldError(err, "thinkingConfig") {
		payload.GenerationConfig.ThinkingConfig = nil
		resp, err = c.generateContent(ctx, apiKey, c.textModel, payload)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(firstCandidateText(resp)), nil
}

// Synthesize renders the fused prompt with up to three role-tagged references.
func (c *Client) Synthesize(ctx context.Context, apiKey string, req SynthesisRequest) (*Image, error) {
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: synthesisParts(req)}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig: &imageConfig{
				AspectRatio: req.AspectRatio,
				ImageSize:   req.Resolution,
			},
		},
	}

	resp, err := c.generateContent(ctx, apiKey, c.imageModel, payload)
	if err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil {
			c.log.Warn("synthesis blocked", "block_reason", resp.PromptFeedback.BlockReason)
			return nil, ErrSafetyBlocked
		}
		return nil, ErrNoResult
	}

	cand := resp.Candidates[0]
	if img, ok, err := inlineImage(cand); err != nil {
		return nil, err
	} else if ok {
		return img, nil
	}
	if text := candidateText(cand); text != "" {
		return nil, &RefusalError{Text: text}
	}
	if cand.FinishReason != "" && cand.FinishReason != "STOP" {
		return nil, &InterruptedError{Reason: cand.FinishReason}
	}
	return nil, ErrNoResult
}

// Edit applies an instruction to an existing image.
func (c *Client) Edit(ctx context.Context, apiKey string, req EditRequest) (*Image, error) {
	payload := generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				inlinePart(req.Image),
				{Text: "Edit this image: " + req.Instruction},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig:        &imageConfig{AspectRatio: req.AspectRatio},
		},
	}

	resp, err := c.generateContent(ctx, apiKey, c.imageModel, payload)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, ErrNoResult
	}

	cand := resp.Candidates[0]
	if img, ok, err := inlineImage(cand); err != nil {
		return nil, err
	} else if ok {
		return img, nil
	}
	if text := candidateText(cand); text != "" {
		return nil, &RefusalError{Text: text}
	}
	return nil, ErrNoResult
}

// ValidateKey performs a minimal round trip with the candidate key.
func (c *Client) ValidateKey(ctx context.Context, apiKey string) KeyValidation {
	payload := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: "Reply with exactly: OK"}}}},
		GenerationConfig: generationConfig{MaxOutputTokens: 5},
	}

	resp, err := c.generateContent(ctx, apiKey, c.textModel, payload)
	if err != nil {
		return classifyKeyError(err)
	}
	if firstCandidateText(resp) == "" {
		return KeyValidation{Status: KeyError, Message: "validation failed: no usable response"}
	}
	return KeyValidation{Status: KeyValid, Valid: true, Message: "API key verified"}
}

func classifyKeyError(err error) KeyValidation {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "API_KEY_INVALID") || strings.Contains(msg, "invalid"):
		return KeyValidation{Status: KeyInvalid, Message: "API key is invalid, check it and retry"}
	case strings.Contains(msg, "PERMISSION_DENIED"):
		return KeyValidation{Status: KeyPermissionDenied, Message: "API key lacks permission, enable the Generative Language API"}
	case strings.Contains(msg, "billing"):
		return KeyValidation{Status: KeyBillingRequired, Message: "API key requires a billing-enabled project"}
	case strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "quota"):
		return KeyValidation{Status: KeyRateLimited, Valid: true, Message: "API key is valid but its quota is exhausted, retry later"}
	default:
		return KeyValidation{Status: KeyError, Message: "validation failed: " + truncate(msg, 100)}
	}
}

func (c *Client) generateContent(ctx context.Context, apiKey, model string, payload generateContentRequest) (generateContentResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	c.log.Debug("gemini request", "model", model, "bytes", len(body))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("request %s: %w", model, err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 300 {
		c.log.Error("gemini request failed", "model", model, "status", httpResp.StatusCode, "body", truncate(string(rawBody), 512))
		return generateContentResponse{}, &APIError{Status: httpResp.StatusCode, Body: truncate(string(rawBody), 512)}
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return decoded, nil
}

func inlineImage(cand candidate) (*Image, bool, error) {
	for _, p := range cand.Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, false, fmt.Errorf("decode inline image: %w", err)
		}
		mime := p.InlineData.MimeType
		if mime == "" {
			mime = "image/png"
		}
		return &Image{MimeType: mime, Bytes: raw}, true, nil
	}
	return nil, false, nil
}

func candidateText(cand candidate) string {
	for _, p := range cand.Content.Parts {
		if strings.TrimSpace(p.Text) != "" {
			return p.Text
		}
	}
	return ""
}

func firstCandidateText(resp generateContentResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func isUnknownFieldError(err error, field string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(apiErr.Body, "Unknown name") && strings.Contains(apiErr.Body, field)
}

type generateContentRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	MaxOutputTokens    int             `json:"maxOutputTokens,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	ThinkingConfig     *thinkingConfig `json:"thinkingConfig,omitempty"`
	ImageConfig        *imageConfig    `json:"imageConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	Thought    bool   `json:"thought,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateContentResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}
