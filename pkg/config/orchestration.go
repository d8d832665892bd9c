// Package config loads the orchestration configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// UpdateStep is the skip list key that disables syncing a workflow from the execution service.
const UpdateStep = "UPDATE_STEP"

var ErrWorkflowNotConfigured = errors.New("workflow type is not configured")

// Workflow describes how to launch one workflow type.
type Workflow struct {
	ID               string         `yaml:"id"                json:"id"                validate:"required"`
	Version          string         `yaml:"version"           json:"version"           validate:"required"`
	Input            map[string]any `yaml:"input"             json:"input"`
	EngineParameters map[string]any `yaml:"engine_parameters" json:"engine_parameters"`
	// Topic is the queue jobs of this type are dispatched to. It defaults to the lower case type.
	Topic string `yaml:"topic" json:"topic"`
}

// SkipList names orchestration steps that must not run, for every run or per instrument run.
type SkipList struct {
	Global []string            `yaml:"global" json:"global"`
	ByRun  map[string][]string `yaml:"by_run" json:"by_run"`
}

// Merge returns the union of both lists. Per run lists of other replace those of s.
func (s SkipList) Merge(other SkipList) SkipList {
	merged := SkipList{
		Global: slices.Concat(s.Global, other.Global),
		ByRun:  map[string][]string{},
	}

	for run, steps := range s.ByRun {
		merged.ByRun[run] = steps
	}

	for run, steps := range other.ByRun {
		merged.ByRun[run] = steps
	}

	return merged
}

// For returns the global steps plus the steps skipped for instrumentRunID.
func (s SkipList) For(instrumentRunID string) []string {
	steps := slices.Clone(s.Global)
	if instrumentRunID != "" {
		steps = append(steps, s.ByRun[instrumentRunID]...)
	}

	return steps
}

// Skips reports whether step is in the global list.
func (s SkipList) Skips(step string) bool {
	return slices.Contains(s.Global, step)
}

// Orchestration is the content of the orchestration YAML file.
type Orchestration struct {
	Workflows map[models.WorkflowType]Workflow `yaml:"workflows" validate:"min=1,dive"`
	Skip      SkipList                         `yaml:"skip"`
}

// Load reads and validates the orchestration file. Workflow type keys are matched case-insensitively.
func Load(path string) (*Orchestration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Orchestration, error) {
	var raw struct {
		Workflows map[string]Workflow `yaml:"workflows"`
		Skip      SkipList            `yaml:"skip"`
	}

	err := yaml.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	cfg := &Orchestration{
		Workflows: make(map[models.WorkflowType]Workflow, len(raw.Workflows)),
		Skip:      raw.Skip,
	}

	for name, wf := range raw.Workflows {
		wfType, err := models.ParseWorkflowType(name)
		if err != nil {
			return nil, fmt.Errorf("workflows.%s: %w", name, err)
		}

		if wf.Topic == "" {
			wf.Topic = wfType.Lower()
		}

		cfg.Workflows[wfType] = wf
	}

	err = validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid orchestration config: %w", err)
	}

	return cfg, nil
}

// Workflow returns the launch settings of wfType.
func (o *Orchestration) Workflow(wfType models.WorkflowType) (Workflow, error) {
	wf, ok := o.Workflows[wfType]
	if !ok {
		return Workflow{}, fmt.Errorf("%w: %s", ErrWorkflowNotConfigured, wfType)
	}

	return wf, nil
}

// Topic returns the queue of wfType, the lower case type when it is not configured.
func (o *Orchestration) Topic(wfType models.WorkflowType) string {
	if wf, ok := o.Workflows[wfType]; ok && wf.Topic != "" {
		return wf.Topic
	}

	return wfType.Lower()
}

// ParseSkipList decodes a JSON skip list such as {"global":["DRAGEN_WTS_STEP"]}. An empty
// string is an empty list.
func ParseSkipList(s string) (SkipList, error) {
	var skip SkipList

	if s == "" {
		return skip, nil
	}

	err := json.Unmarshal([]byte(s), &skip)
	if err != nil {
		return skip, fmt.Errorf("invalid skip list: %w", err)
	}

	return skip, nil
}
