package core

// Task describes one unit of work in a workflow, as handed over by the
// orchestrator. The core treats it as read-only.
type Task struct {
	WorkflowID   string  `json:"workflow_id" yaml:"workflow_id"`
	TaskID       string  `json:"task_id" yaml:"task_id"`
	Dialect      Dialect `json:"dialect,omitempty" yaml:"dialect,omitempty"`
	SQL          string  `json:"sql,omitempty" yaml:"sql,omitempty"`
	ConnectionID string  `json:"connection_id,omitempty" yaml:"connection_id,omitempty"`

	// FilePath is the file that defines the task. Used to build source
	// locations; empty when unknown.
	FilePath string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}
