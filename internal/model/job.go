package model

import "time"

// Job is the stored record of one generation run
type Job struct {
	ID          string         `json:"id"`
	Status      WorkflowStatus `json:"status"`
	CurrentStep string         `json:"currentStep,omitempty"`
	Prompt      string         `json:"prompt"`
	VideoURL    *string        `json:"videoUrl,omitempty"`
	Error       *string        `json:"error,omitempty"`
	ErrorCode   string         `json:"errorCode,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// GenerationOutcome is the result of a successful run
type GenerationOutcome struct {
	VideoURL string `json:"videoUrl"`
}

// GenerateRequest starts a run. An empty prompt falls back to the stored one.
type GenerateRequest struct {
	Prompt string `json:"prompt" validate:"max=4000"`
}

type GenerateResponse struct {
	JobID     string         `json:"jobId"`
	Status    WorkflowStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
}

type PromptRequest struct {
	Prompt string `json:"prompt" validate:"required,max=4000"`
}

type PromptResponse struct {
	Prompt string `json:"prompt"`
}

// StatusResponse is the live view of the studio
type StatusResponse struct {
	JobID     string                      `json:"jobId,omitempty"`
	Status    WorkflowStatus              `json:"status"`
	Prompt    string                      `json:"prompt"`
	VideoURL  string                      `json:"videoUrl,omitempty"`
	Error     string                      `json:"error,omitempty"`
	ErrorCode string                      `json:"errorCode,omitempty"`
	HasKey    bool                        `json:"hasKey"`
	Assets    map[AssetRole]*EncodedAsset `json:"assets"`
}

type KeyStatusResponse struct {
	HasKey bool `json:"hasKey"`
}
