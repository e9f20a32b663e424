// Package plan loads goal plan files.
//
// A plan file is the YAML description of one goal: a name plus the task
// set handed to the phase planner. Structural validation (cycles,
// dangling dependencies) belongs to the planner; this package only
// checks the file shape.
package plan

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/orchestd/internal/graph"
)

// CurrentSchemaVersion is the newest plan file schema this build reads.
const CurrentSchemaVersion = 1

// TaskDef is one task entry in a plan file.
type TaskDef struct {
	ID          string         `yaml:"id"`
	Category    string         `yaml:"category"`
	Description string         `yaml:"description"`
	Priority    int            `yaml:"priority"`
	DependsOn   []string       `yaml:"depends_on"`
	Params      map[string]any `yaml:"params"`
	Timeout     string         `yaml:"timeout"`
}

// Plan is one goal description.
type Plan struct {
	SchemaVersion int       `yaml:"schema_version"`
	Goal          string    `yaml:"goal"`
	Tasks         []TaskDef `yaml:"tasks"`
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	p, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("plan file %s: %w", path, err)
	}
	return p, nil
}

// Parse parses plan file contents.
func Parse(content []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(content, &p); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) validate() error {
	if p.SchemaVersion < 1 {
		return fmt.Errorf("invalid schema_version %d (must be >= 1)", p.SchemaVersion)
	}
	if p.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema_version %d (max supported: %d)", p.SchemaVersion, CurrentSchemaVersion)
	}
	if p.Goal == "" {
		return fmt.Errorf("missing goal")
	}
	if len(p.Tasks) == 0 {
		return fmt.Errorf("plan has no tasks")
	}
	for i, t := range p.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task %d: missing id", i)
		}
		if t.Category == "" {
			return fmt.Errorf("task %q: missing category", t.ID)
		}
		if t.Timeout != "" {
			if _, err := time.ParseDuration(t.Timeout); err != nil {
				return fmt.Errorf("task %q: invalid timeout: %w", t.ID, err)
			}
		}
	}
	return nil
}

// Specs converts the plan's tasks for the phase planner.
func (p *Plan) Specs() []graph.TaskSpec {
	specs := make([]graph.TaskSpec, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		spec := graph.TaskSpec{
			ID:          t.ID,
			Category:    t.Category,
			Description: t.Description,
			Priority:    t.Priority,
			DependsOn:   t.DependsOn,
			Params:      t.Params,
		}
		if t.Timeout != "" {
			// Already validated in Parse.
			spec.Timeout, _ = time.ParseDuration(t.Timeout)
		}
		specs = append(specs, spec)
	}
	return specs
}
