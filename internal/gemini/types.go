package gemini

import (
	"encoding/base64"

	"github.com/vincent-petithory/dataurl"
)

// Mode selects how the fusion stage treats its inputs.
type Mode int

const (
	// ModeTemplateFusion casts the uploads into the base template's pose and camera.
	ModeTemplateFusion Mode = iota
	// ModeStyleReference rebuilds the style reference with identity and scene swapped in.
	ModeStyleReference
)

func (m Mode) String() string {
	if m == ModeStyleReference {
		return "style_reference"
	}
	return "template_fusion"
}

// ImageInput is a base64 payload without data-URI prefix.
type ImageInput struct {
	MimeType string
	Data     string
}

type Image struct {
	MimeType string
	Bytes    []byte
}

// DataURI renders the image as a base64 data URI.
func (i Image) DataURI() string {
	mime := i.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return dataurl.New(i.Bytes, mime).String()
}

// Base64 returns the raw payload encoded for an inlineData part.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Bytes)
}

type FusionRequest struct {
	Mode         Mode
	Subjects     []ImageInput
	Scenes       []ImageInput
	StyleRefs    []ImageInput
	Instruction  string
	BaseTemplate string
	Giant        bool
}

// References are the role-tagged images handed to the synthesis model.
type References struct {
	Identity    *ImageInput
	Background  *ImageInput
	Composition *ImageInput
}

type SynthesisRequest struct {
	Prompt      string
	AspectRatio string
	Resolution  string
	References  References
}

type EditRequest struct {
	Image       ImageInput
	Instruction string
	AspectRatio string
}

type KeyStatus string

const (
	KeyValid            KeyStatus = "valid"
	KeyInvalid          KeyStatus = "invalid_key"
	KeyPermissionDenied KeyStatus = "insufficient_permission"
	KeyBillingRequired  KeyStatus = "billing_required"
	KeyRateLimited      KeyStatus = "rate_limited"
	KeyError            KeyStatus = "error"
)

type KeyValidation struct {
	Status  KeyStatus `json:"status"`
	Valid   bool      `json:"valid"`
	Message string    `json:"message"`
}
