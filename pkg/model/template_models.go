package model

import "time"

// TemplateType discriminates the content payload of a template.
type TemplateType string

const (
	TypeText    TemplateType = "text"
	TypeImage   TemplateType = "image"
	TypeAudio   TemplateType = "audio"
	TypeVideo   TemplateType = "video"
	TypeMixed   TemplateType = "mixed"
	TypeContact TemplateType = "contact"
)

// TemplateTypes lists every known template type, in declaration order.
var TemplateTypes = []TemplateType{TypeText, TypeImage, TypeAudio, TypeVideo, TypeMixed, TypeContact}

// Valid reports whether t is one of the known template types.
func (t TemplateType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeAudio, TypeVideo, TypeMixed, TypeContact:
		return true
	}
	return false
}

// DefaultLabel returns the label assigned when a template of this type is
// created with a blank label.
func (t TemplateType) DefaultLabel() string {
	switch t {
	case TypeText:
		return "新模板"
	case TypeImage:
		return "图片模板"
	case TypeAudio:
		return "音频模板"
	case TypeVideo:
		return "视频模板"
	case TypeMixed:
		return "图文模板"
	case TypeContact:
		return "名片模板"
	default:
		return "新模板"
	}
}

// ContactInfo is the payload of a contact-card template.
type ContactInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// TemplateContent is the per-type payload of a template, discriminated by the
// owning template's Type. Which fields are meaningful is decided exhaustively
// by Validate; unrelated fields stay empty. MediaData/MediaExt replace
// MediaPath only inside self-contained export documents.
type TemplateContent struct {
	Text      string       `json:"text,omitempty"`
	MediaPath string       `json:"mediaPath,omitempty"`
	MediaData string       `json:"mediaData,omitempty"`
	MediaExt  string       `json:"mediaExt,omitempty"`
	Contact   *ContactInfo `json:"contactInfo,omitempty"`
}

// HasMedia reports whether the content references a media payload, either as
// a filesystem path or as embedded transfer data.
func (c TemplateContent) HasMedia() bool {
	return c.MediaPath != "" || c.MediaData != ""
}

// Template is a reusable canned reply belonging to exactly one group.
// Order is scoped to the group and kept dense (1..N) by the template manager.
type Template struct {
	ID         string          `json:"id"`
	GroupID    string          `json:"groupId"`
	Type       TemplateType    `json:"type"`
	Visibility string          `json:"visibility"`
	Label      string          `json:"label"`
	Content    TemplateContent `json:"content"`
	Order      int             `json:"order"`
	UsageCount int             `json:"usageCount"`
	LastUsedAt *time.Time      `json:"lastUsedAt"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// TemplatePatch describes a partial update to a template. Nil fields are left
// untouched. When Type is set, Content must be set as well so the pair can be
// validated together.
type TemplatePatch struct {
	Label      *string
	Visibility *string
	Type       *TemplateType
	Content    *TemplateContent
}

// UsageStats is the usage projection returned by the template manager.
type UsageStats struct {
	UsageCount int        `json:"usageCount"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
}
