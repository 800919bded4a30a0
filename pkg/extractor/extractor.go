// Package extractor derives lineage Metadata from workflow tasks.
//
// An Extractors registry holds an ordered list of Extractor strategies and
// always ends with a DefaultExtractor, so every task is handled:
//
//	reg := extractor.Default(logger)
//	md, err := reg.Extract(&core.Task{
//	    WorkflowID: "daily_etl",
//	    TaskID:     "load_users",
//	    Dialect:    core.DialectPostgres,
//	    SQL:        "INSERT INTO users SELECT id, name FROM staging_users",
//	})
//	// md.Name = "daily_etl.load_users", md.Inputs = [staging_users], md.Outputs = [users]
//
// Unparseable SQL never fails an extraction; it yields empty or partial
// lineage. The only error is a task without identity (MalformedTaskError).
package extractor

import (
	"strings"

	"github.com/leapstack-labs/lineagekit/pkg/core"
)

// Extractor derives lineage metadata from one class of task.
// Implementations are stateless apart from configuration and safe for
// concurrent use.
type Extractor interface {
	// CanExtract reports whether this extractor handles the task.
	// It must not have side effects.
	CanExtract(task *core.Task) bool

	// Extract builds the task's metadata. It fails only when the task
	// cannot be named.
	Extract(task *core.Task) (*core.Metadata, error)
}

// TaskName returns "<workflowID>.<taskID>". A task missing either field
// yields a *core.MalformedTaskError.
func TaskName(task *core.Task) (string, error) {
	if task == nil {
		return "", &core.MalformedTaskError{Field: "task"}
	}
	if strings.TrimSpace(task.WorkflowID) == "" {
		return "", &core.MalformedTaskError{Field: "workflow_id"}
	}
	if strings.TrimSpace(task.TaskID) == "" {
		return "", &core.MalformedTaskError{Field: "task_id"}
	}
	return task.WorkflowID + "." + task.TaskID, nil
}

// DefaultExtractor matches every task and emits name-only metadata.
type DefaultExtractor struct{}

// CanExtract always returns true.
func (DefaultExtractor) CanExtract(*core.Task) bool {
	return true
}

// Extract returns metadata carrying only the task name.
func (DefaultExtractor) Extract(task *core.Task) (*core.Metadata, error) {
	name, err := TaskName(task)
	if err != nil {
		return nil, err
	}
	return &core.Metadata{
		Name:    name,
		Inputs:  []core.TableRef{},
		Outputs: []core.TableRef{},
	}, nil
}
