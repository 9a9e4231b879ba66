// Package models defines the core domain models for push-gated build pipelines.
package models

import "time"

// Step is one named unit of pipeline work. Run holds an opaque shell command;
// the runner never interprets it beyond handing it to the shell, so commands
// may compose sub-commands with `&&` and keep the shell's short-circuit
// semantics.
type Step struct {
	Name string            `json:"name" yaml:"name" validate:"required"`
	Run  string            `json:"run"  yaml:"run"  validate:"required"`
	Env  map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// TriggerBinding attaches a trigger source to a pipeline. The webhook type is
// served by the API; schedule and queue bindings are started by the trigger
// daemon.
type TriggerBinding struct {
	Type          string         `json:"type" yaml:"type" validate:"required,oneof=webhook schedule queue"`
	Configuration map[string]any `json:"configuration,omitempty" yaml:"configuration,omitempty"`
}

// Pipeline is an ordered sequence of steps executed for one trigger event.
// Declaration order is execution order; no step starts before every earlier
// step has succeeded.
type Pipeline struct {
	ID          string           `json:"id"          yaml:"id"          validate:"required,min=3"`
	Name        string           `json:"name"        yaml:"name"        validate:"required,min=3"`
	Description string           `json:"description" yaml:"description,omitempty"`
	Steps       []Step           `json:"steps"       yaml:"steps"       validate:"required,min=1,dive"`
	Triggers    []TriggerBinding `json:"triggers,omitempty" yaml:"triggers,omitempty" validate:"dive"`
	CreatedAt   time.Time        `json:"created_at"  yaml:"-"`
	UpdatedAt   time.Time        `json:"updated_at"  yaml:"-"`
}
