package web

import "github.com/pushgate/pushgate/pkg/models"

// TriggerRequest is the payload for POST /events: one push notification.
// An empty pipeline ID targets the default pipeline; an empty commit means
// the head of the ref.
type TriggerRequest struct {
	PipelineID string `json:"pipeline_id,omitempty"`
	Ref        string `json:"ref"              validate:"required"`
	Commit     string `json:"commit,omitempty"`
}

// CreatePipelineRequest is the payload for POST /pipelines.
type CreatePipelineRequest struct {
	ID          string                  `json:"id"          validate:"required,min=3"`
	Name        string                  `json:"name"        validate:"required,min=3"`
	Description string                  `json:"description,omitempty"`
	Steps       []models.Step           `json:"steps"       validate:"required,min=1,dive"`
	Triggers    []models.TriggerBinding `json:"triggers,omitempty" validate:"dive"`
}

// CancelRequest is the optional payload for POST /runs/:id/cancel.
type CancelRequest struct {
	RequestedBy string `json:"requested_by,omitempty"`
}
