package gemini

import (
	"fmt"
	"strings"
)

const (
	labelSubject = "Input Image Type: [User Subject/Person]"
	labelScene   = "Input Image Type: [User Scene/Background]"
	labelStyle   = "Input Image Type: [Style Reference]"
)

const safetyConstraint = `**SAFETY CONSTRAINT (CRITICAL)**:
- The output prompt MUST be safe for image generation.
- Do NOT include sexually explicit, nude, highly suggestive, or provocative descriptions.
- If the user input or a reference image implies nudity or restricted content, describe the subject as appropriately clothed.
- Avoid overly specific anatomical focus.`

const styleReferenceRules = `1. **Objective**: Reconstruct the description of the [Style Reference] image, performing SWAPS based on the user uploads.
2. **Unchanged rule**: a visual element of the [Style Reference] (pose, clothing, art style, props) that is not replaced by [User Subject] or [User Scene] MUST be preserved. Match its skin texture, lens characteristics and composition.
3. **Swap rule**:
   - Subject swap: if [User Subject] is present, describe the main character of the [Style Reference] with the face, hair and physical identity of the [User Subject].
   - Background swap: if [User Scene] is present, describe the location, lighting and time of day visible in it. Its lighting and atmosphere OVERRIDE the [Style Reference]. Map the scene onto the perspective and camera angle of the [Style Reference].`

const templateRules = `1. **Objective**: Execute the scene described in the Base Text Template (master script), casting the uploaded images into its roles.
2. **Strict text adherence**: the Base Text Template is the authority for action, pose, clothing and camera angle.
3. **Cast and location swap**:
   - Subject integration: if [User Subject] is provided, the character in the text takes on the identity of the [User Subject].
   - Background integration: if [User Scene] is provided, describe the location, lighting, time of day and weather visible in it and IGNORE any lighting, sky or environment described by the template. Place the subject there using the template's pose and camera angle.
4. **Result**: the [User Subject] enacting the template's pose inside the [User Scene] environment.`

const giantEmphasis = `SCALE EMPHASIS: this is the giant composition. Keep the extreme scale contrast between the oversized subject and the miniature surroundings explicit in the prompt, including the low camera angle that sells the size difference.`

// systemInstruction builds the fusion-stage instruction for the selected mode.
func systemInstruction(req FusionRequest) string {
	var b strings.Builder
	b.WriteString("You are an expert image prompt reverse-engineer and reconstructionist.\n\n")
	b.WriteString("YOUR TASK:\nWrite a highly detailed image generation prompt for the image model.\n\n")
	b.WriteString(safetyConstraint)
	b.WriteString("\n\n**MODE SELECTION**:\n")

	switch req.Mode {
	case ModeStyleReference:
		b.WriteString(">> MODE: STYLE REFERENCE RECONSTRUCTION\n")
		b.WriteString("- Source of truth: the [Style Reference] image for composition and style.\n")
		b.WriteString("- Source of truth (background): the [User Scene] image, if provided, for lighting and environment.\n")
		b.WriteString("- Action: describe the [Style Reference] structure, swapping the environment with the [User Scene].\n\n")
		b.WriteString("--- BASE TEXT TEMPLATE ---\n(IGNORE TEMPLATE)\n--------------------------\n\n")
		b.WriteString("SPECIFIC INSTRUCTIONS:\n")
		b.WriteString(styleReferenceRules)
	default:
		b.WriteString(">> MODE: TEMPLATE FUSION\n")
		b.WriteString("- Source of truth: the Base Text Template for pose, action and angle.\n")
		b.WriteString("- Source of truth (background): the [User Scene] image, if provided, for lighting and environment.\n")
		b.WriteString("- Action: use the template script, rewriting the setting to match the [User Scene].\n\n")
		fmt.Fprintf(&b, "--- BASE TEXT TEMPLATE ---\n%s\n--------------------------\n\n", req.BaseTemplate)
		b.WriteString("SPECIFIC INSTRUCTIONS:\n")
		b.WriteString(templateRules)
	}

	if req.Giant {
		b.WriteString("\n\n")
		b.WriteString(giantEmphasis)
	}

	b.WriteString("\n\nOUTPUT:\n- Return ONLY the final, descriptive English prompt. Do not add explanations.")
	return b.String()
}

func fusionParts(req FusionRequest) []part {
	parts := make([]part, 0, 2*(len(req.Subjects)+len(req.Scenes)+len(req.StyleRefs))+1)
	add := func(images []ImageInput, label string) {
		for _, img := range images {
			parts = append(parts, inlinePart(img), part{Text: label})
		}
	}
	add(req.Subjects, labelSubject)
	add(req.Scenes, labelScene)
	add(req.StyleRefs, labelStyle)

	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		instruction = "None"
	}
	parts = append(parts, part{Text: fmt.Sprintf("User Additional Text Instructions: %q", instruction)})
	return parts
}

func synthesisParts(req SynthesisRequest) []part {
	var parts []part
	refs := req.References
	if refs.Identity != nil {
		parts = append(parts, inlinePart(*refs.Identity), part{
			Text: "Reference Image [ID_SOURCE]: Use this face/identity. Map this identity onto the subject in the composition.",
		})
	}
	if refs.Background != nil {
		parts = append(parts, inlinePart(*refs.Background), part{
			Text: "Reference Image [BG_SOURCE]: Use this exact environment. PRESERVE the lighting, color palette, time of day, and mood of this image.",
		})
	}
	if refs.Composition != nil {
		parts = append(parts, inlinePart(*refs.Composition), part{
			Text: "Reference Image [MASTER_COMPOSITION]: This image defines the POSE, ANGLE, CLOTHING, and STYLE. The result must look like this image, but with the [ID_SOURCE] identity and [BG_SOURCE] background swapped in.",
		})
	}
	parts = append(parts, part{Text: "Create a photorealistic image based on this description: " + req.Prompt})
	return parts
}

func inlinePart(img ImageInput) part {
	mime := img.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return part{InlineData: &blob{MimeType: mime, Data: stripDataURLPrefix(img.Data)}}
}

func stripDataURLPrefix(value string) string {
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		return value[idx+1:]
	}
	return value
}
