package models

import "time"

type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanBasic      PlanType = "basic"
	PlanPro        PlanType = "pro"
	PlanEnterprise PlanType = "enterprise"
)

type Resolution string

const (
	Resolution1K Resolution = "1K"
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"
)

// Rank orders resolutions 1K < 2K < 4K. Unknown values rank -1.
func (r Resolution) Rank() int {
	switch r {
	case Resolution1K:
		return 0
	case Resolution2K:
		return 1
	case Resolution4K:
		return 2
	default:
		return -1
	}
}

type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectPortrait  AspectRatio = "3:4"
	AspectLandscape AspectRatio = "4:3"
	AspectTall      AspectRatio = "9:16"
	AspectWide      AspectRatio = "16:9"
)

func (a AspectRatio) Valid() bool {
	switch a {
	case AspectSquare, AspectPortrait, AspectLandscape, AspectTall, AspectWide:
		return true
	}
	return false
}

// CostType records how a generation was paid for.
type CostType string

const (
	CostTypeGuest  CostType = "guest"
	CostTypeCredit CostType = "credit"
	CostTypeCustom CostType = "custom"
)

type Plan struct {
	ID            PlanType   `json:"id"`
	Name          string     `json:"name"`
	NameEn        string     `json:"nameEn"`
	Price         int        `json:"price"`
	Period        string     `json:"period"`
	Credits       int        `json:"credits"`
	Features      []string   `json:"features"`
	Highlighted   bool       `json:"highlighted,omitempty"`
	Badge         string     `json:"badge,omitempty"`
	MaxResolution Resolution `json:"maxResolution"`
	MaxUploads    int        `json:"maxUploads"`
	EditEnabled   bool       `json:"editEnabled"`
	PriorityQueue bool       `json:"priorityQueue"`
}

type Account struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"displayName"`
	Avatar         string    `json:"avatar,omitempty"`
	Plan           PlanType  `json:"plan"`
	Credits        int       `json:"credits"`
	TotalGenerated int       `json:"totalGenerated"`
	CreatedAt      time.Time `json:"createdAt"`
	LastLoginAt    time.Time `json:"lastLoginAt"`
}

type GuestUsage struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

type GenerationSettings struct {
	AspectRatio AspectRatio `json:"aspectRatio"`
	Resolution  Resolution  `json:"resolution"`
	Prompt      string      `json:"prompt"`
}

// UploadedImage is one user-supplied picture. Data holds the base64 payload
// without any data-URI prefix.
type UploadedImage struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GenerationRecord struct {
	ID           string             `json:"id"`
	UserID       string             `json:"userId"`
	TemplateName string             `json:"templateName"`
	ImageURL     string             `json:"imageUrl"`
	Prompt       string             `json:"prompt"`
	Settings     GenerationSettings `json:"settings"`
	Cost         CostType           `json:"cost"`
	CreatedAt    time.Time          `json:"createdAt"`
}

type Template struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Script string `json:"script,omitempty"`
}
