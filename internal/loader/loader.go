// Package loader reads workflow task descriptors from YAML task files.
//
// A task file names one workflow and lists its SQL tasks:
//
//	workflow: daily_etl
//	file: dags/daily_etl.py   # optional, the code that defines the workflow
//	dialect: postgres         # optional default for the tasks below
//	tasks:
//	  - id: load_users
//	    connection: analytics_db
//	    sql: INSERT INTO users SELECT id, name FROM staging_users
//	  - id: rollup
//	    sql_file: sql/rollup.sql
//
// Relative paths (file, sql_file) are resolved against the task file's
// directory. Unknown fields are rejected.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/lineagekit/pkg/core"
	"gopkg.in/yaml.v3"
)

type fileSpec struct {
	Workflow   string     `yaml:"workflow"`
	File       string     `yaml:"file"`
	Dialect    string     `yaml:"dialect"`
	Connection string     `yaml:"connection"`
	Tasks      []taskSpec `yaml:"tasks"`
}

type taskSpec struct {
	ID         string `yaml:"id"`
	Dialect    string `yaml:"dialect"`
	Connection string `yaml:"connection"`
	SQL        string `yaml:"sql"`
	SQLFile    string `yaml:"sql_file"`
	File       string `yaml:"file"`
}

// ParseError reports an invalid task file.
type ParseError struct {
	File    string
	Message string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// Loader turns task files into core tasks. The zero value is ready to use.
type Loader struct {
	// DefaultDialect applies to tasks whose file sets no dialect.
	DefaultDialect core.Dialect
}

// IsTaskFile reports whether path looks like a task file.
func IsTaskFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFiles loads every file in order and concatenates their tasks.
func (l Loader) LoadFiles(paths ...string) ([]*core.Task, error) {
	var tasks []*core.Task
	for _, p := range paths {
		ts, err := l.LoadFile(p)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, ts...)
	}
	return tasks, nil
}

// LoadFile reads one task file.
func (l Loader) LoadFile(path string) ([]*core.Task, error) {
	f, err := os.Open(path) //nolint:gosec // G304: task files are user-provided by design
	if err != nil {
		return nil, fmt.Errorf("failed to open task file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return l.Load(f, path)
}

// Load decodes a task file from r. path is used for error messages and to
// resolve relative paths; it may be empty for stdin.
func (l Loader) Load(r io.Reader, path string) ([]*core.Task, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var tf fileSpec
	if err := dec.Decode(&tf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &ParseError{File: path, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}

	baseDir := "."
	if path != "" {
		baseDir = filepath.Dir(path)
	}

	fileDialect := l.DefaultDialect
	if tf.Dialect != "" {
		d, err := core.ParseDialect(tf.Dialect)
		if err != nil {
			return nil, &ParseError{File: path, Message: err.Error()}
		}
		fileDialect = d
	}

	seen := make(map[string]bool, len(tf.Tasks))
	tasks := make([]*core.Task, 0, len(tf.Tasks))
	for _, ts := range tf.Tasks {
		if ts.ID != "" {
			if seen[ts.ID] {
				return nil, &ParseError{File: path, Message: fmt.Sprintf("duplicate task id %q", ts.ID)}
			}
			seen[ts.ID] = true
		}

		task, err := l.buildTask(tf, ts, fileDialect, baseDir, path)
		if err != nil {
			return nil, &ParseError{File: path, Message: fmt.Sprintf("task %q: %v", ts.ID, err)}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (l Loader) buildTask(tf fileSpec, ts taskSpec, fileDialect core.Dialect, baseDir, path string) (*core.Task, error) {
	task := &core.Task{
		WorkflowID:   tf.Workflow,
		TaskID:       ts.ID,
		Dialect:      fileDialect,
		SQL:          ts.SQL,
		ConnectionID: firstNonEmpty(ts.Connection, tf.Connection),
	}

	if ts.Dialect != "" {
		d, err := core.ParseDialect(ts.Dialect)
		if err != nil {
			return nil, err
		}
		task.Dialect = d
	}

	if ts.SQLFile != "" {
		if ts.SQL != "" {
			return nil, errors.New("sql and sql_file are mutually exclusive")
		}
		data, err := os.ReadFile(resolve(ts.SQLFile, baseDir)) //nolint:gosec // G304: path comes from the task file
		if err != nil {
			return nil, fmt.Errorf("failed to read sql_file: %w", err)
		}
		task.SQL = string(data)
	}

	switch {
	case ts.File != "":
		task.FilePath = resolve(ts.File, baseDir)
	case tf.File != "":
		task.FilePath = resolve(tf.File, baseDir)
	default:
		task.FilePath = path
	}

	return task, nil
}

// resolve joins a relative path onto baseDir.
func resolve(p, baseDir string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
