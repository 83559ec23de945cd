package api

import (
	"tracking-api/domain"
	"tracking-api/push"
	"tracking-api/tasks"
)

const requestBodyMaxSize = 256 * 1024 // 256 KiB

// POST /api/profiles/:name/tasks request and response bodies.
type createTaskRequest = tasks.CreateInput

type createTaskResponse struct {
	Task          domain.Task `json:"task"`
	CompletionURL string      `json:"completionUrl,omitempty"`
}

// POST /api/profiles/:name/push{,/preview} request body.
type pushRequest struct {
	Destinations []push.Destination `json:"destinations"`
	EmailTo      []string           `json:"emailTo,omitempty"`
}

type pushResponse struct {
	Outcomes []push.Outcome `json:"outcomes"`
}

type previewResponse struct {
	Payload  push.Payload    `json:"payload"`
	Rendered []push.Rendered `json:"rendered"`
}
