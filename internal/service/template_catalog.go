package service

import (
	"slices"

	"github.com/digkill/PixelMuse/internal/models"
)

const (
	TemplateGiant  = "giant"
	TemplateCustom = "custom"
)

// starterTemplates are open to guests and the free plan.
var starterTemplates = []string{"giant", "bathroom", "student"}

var builtinTemplates = []models.Template{
	{
		ID:    "giant",
		Label: "Giant composition",
		Script: "A towering giant version of the subject stands over a miniature city street, shot from a very low ground-level angle. " +
			"Tiny pedestrians and cars surround the feet, the subject looks down with a calm expression, soft late-afternoon sunlight, " +
			"tilt-shift depth of field, hyper-detailed photorealism.",
	},
	{
		ID:    "bathroom",
		Label: "Bathroom low angle (high realism)",
		Script: "Casual mirror-side portrait in a bright modern bathroom, camera placed low and angled upward, subject in a relaxed standing pose " +
			"wearing comfortable loungewear, white tiles, warm vanity lights, natural skin texture, smartphone photo realism.",
	},
	{
		ID:    "student",
		Label: "Student reverie (literary)",
		Script: "A thoughtful student sits by a classroom window resting the chin on one hand, school uniform, open notebook and pencil on the desk, " +
			"soft diffused daylight, shallow depth of field, muted film color grading, quiet contemplative mood.",
	},
	{
		ID:    "subway",
		Label: "Subway girl (graffiti mixed media)",
		Script: "Full-body shot of the subject leaning against a subway car door, streetwear outfit, hand-drawn graffiti doodles and stickers " +
			"overlaid around the figure in a mixed-media collage style, fluorescent carriage lighting, slight motion blur outside the windows.",
	},
	{
		ID:    "beach",
		Label: "Beach selfie (influencer)",
		Script: "Arm-length selfie on a sunny beach, subject smiling at the camera in a summer outfit and sunglasses pushed up on the head, " +
			"turquoise water and white sand behind, golden-hour backlight with lens flare, vibrant social-media color palette.",
	},
	{
		ID:    "snow",
		Label: "Snow beauty (8K)",
		Script: "Close-up portrait in a snowy pine forest, subject wrapped in a cream knit scarf and wool coat, snowflakes resting on the hair and lashes, " +
			"breath visible in the cold air, overcast soft light, ultra-sharp 8K detail, cool blue-white tones.",
	},
	{
		ID:    "emerald",
		Label: "Emerald goddess (vintage forest)",
		Script: "Three-quarter portrait of the subject in a flowing emerald velvet gown standing among moss-covered trees, crown of leaves and small flowers, " +
			"shafts of light through the canopy, vintage oil-painting color grading, ethereal atmosphere.",
	},
	{
		ID:    "sewing",
		Label: "Mini sewing (miniature reality)",
		Script: "Miniature version of the subject sitting on a spool of thread beside a giant sewing machine needle, tiny fabric scraps scattered around, " +
			"macro lens photography, shallow depth of field, warm craft-table lighting, whimsical miniature-world realism.",
	},
	{
		ID:    "rocks",
		Label: "Beach rocks (haute couture)",
		Script: "Haute couture fashion shot of the subject posed on dark volcanic rocks at the shoreline, sculptural designer outfit, waves breaking behind, " +
			"dramatic overcast sky, editorial magazine lighting, strong silhouette.",
	},
	{
		ID:    "tourist",
		Label: "Tourist check-in (European)",
		Script: "Travel snapshot of the subject at a famous European plaza, walking toward the camera while glancing back over the shoulder, " +
			"stylish travel outfit and tote bag, historic architecture and a fountain in the background, bright midday light.",
	},
	{
		ID:    "phone",
		Label: "Phone dance (cyber miniature)",
		Script: "A tiny dancing figure of the subject performing on top of a glowing smartphone screen held in a hand, neon cyberpunk reflections, " +
			"holographic UI elements floating around, dark background with magenta and cyan rim lights.",
	},
	{
		ID:    "butterfly",
		Label: "Runway butterflies (dreamy couture)",
		Script: "The subject walks a couture runway in a gown made of translucent butterfly wings, real butterflies taking off from the train, " +
			"audience silhouettes in soft focus, spotlight from above, dreamy pastel haze.",
	},
	{
		ID:    "ski",
		Label: "Summit ski (luxury sport)",
		Script: "The subject stands on a sunny mountain summit holding skis on one shoulder, designer ski suit and reflective goggles on the forehead, " +
			"sweeping snow-covered peaks and deep blue sky behind, crisp alpine light, premium sportswear campaign aesthetic.",
	},
}

// TemplateCatalog maps composition template ids to their scripts.
type TemplateCatalog struct {
	templates []models.Template
}

func NewTemplateCatalog() *TemplateCatalog {
	return &TemplateCatalog{templates: builtinTemplates}
}

// List returns the built-in templates followed by the custom entry.
func (c *TemplateCatalog) List() []models.Template {
	out := make([]models.Template, 0, len(c.templates)+1)
	out = append(out, c.templates...)
	out = append(out, models.Template{ID: TemplateCustom, Label: "Custom composition"})
	return out
}

func (c *TemplateCatalog) Get(id string) (models.Template, bool) {
	if id == TemplateCustom {
		return models.Template{ID: TemplateCustom, Label: "Custom composition"}, true
	}
	for _, t := range c.templates {
		if t.ID == id {
			return t, true
		}
	}
	return models.Template{}, false
}

// Script returns the effective template text: the custom text for the
// custom template, or the built-in script. Unknown ids yield "".
func (c *TemplateCatalog) Script(id, custom string) string {
	if id == TemplateCustom {
		return custom
	}
	t, ok := c.Get(id)
	if !ok {
		return ""
	}
	return t.Script
}

func (c *TemplateCatalog) Label(id string) string {
	t, ok := c.Get(id)
	if !ok {
		return "Custom"
	}
	return t.Label
}

func isStarterTemplate(id string) bool {
	return slices.Contains(starterTemplates, id)
}
