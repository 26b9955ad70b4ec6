package model

import "time"

// SendMode selects how the send pipeline delivers a template.
type SendMode string

const (
	SendOriginal   SendMode = "original"
	SendTranslated SendMode = "translated"
)

// Valid reports whether m is a known send mode.
func (m SendMode) Valid() bool {
	return m == SendOriginal || m == SendTranslated
}

// AccountConfig holds per-account settings, stored independently from groups
// and templates.
type AccountConfig struct {
	AccountID           string    `json:"accountId"`
	SendMode            SendMode  `json:"sendMode"`
	ExpandedGroups      []string  `json:"expandedGroups"`
	LastSelectedGroupID *string   `json:"lastSelectedGroupId"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// AccountConfigPatch describes a partial update to an account's settings.
type AccountConfigPatch struct {
	SendMode            *SendMode
	LastSelectedGroupID *string
}

// Config is the application configuration loaded from the YAML config file.
type Config struct {
	DataDir        string `yaml:"data_dir" validate:"required"`
	LogDir         string `yaml:"log_dir" validate:"required"`
	LogLevel       string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogConsole     bool   `yaml:"log_console"`
	DefaultAccount string `yaml:"default_account"`
}
