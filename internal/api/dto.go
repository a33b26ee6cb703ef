package api

import (
	"github.com/starford/dastan/internal/models"
	"github.com/starford/dastan/internal/reader"
)

// Response types aliased from the domain layer for the API docs.
type (
	WordInfo          = models.WordInfo
	SentenceInfo      = models.SentenceInfo
	NarrativeAnalysis = models.NarrativeAnalysis
	Summary           = models.Summary
	Question          = models.Question
	Timeline          = models.Timeline
	Settings          = models.Settings
	ToolInfo          = reader.ToolInfo
)

// UpdateSettingsRequest is the request body for updating settings. Omitted fields are kept.
type UpdateSettingsRequest = models.SettingsPatch

// ToolsResponse lists the reading tools.
type ToolsResponse struct {
	Tools []ToolInfo `json:"tools" validate:"required"`
}

type statusResponse struct {
	Status string `json:"status" example:"ok" validate:"required"`
}
