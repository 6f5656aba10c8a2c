package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/engine"
	"github.com/shaiso/Stepflow/internal/repo"
	"github.com/shaiso/Stepflow/internal/steps"
	"github.com/shaiso/Stepflow/internal/telemetry"
)

// ErrRunFailed — локальный run завершился статусом failed.
var ErrRunFailed = errors.New("run failed")

// WorkflowFile — описание workflow в YAML.
//
//	name: site health
//	steps:
//	  - type: delay
//	    config:
//	      seconds: 1
//	  - type: http_check
//	    config:
//	      url: https://example.com
type WorkflowFile struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Steps       []StepFile `yaml:"steps"`
}

// StepFile — шаг в YAML-описании workflow.
type StepFile struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

// LoadWorkflowFile читает описание workflow. Неизвестные поля — ошибка.
func LoadWorkflowFile(r io.Reader) (*WorkflowFile, error) {
	var wf WorkflowFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&wf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("workflow file is empty")
		}
		return nil, fmt.Errorf("parse workflow file: %w", err)
	}

	for i, s := range wf.Steps {
		if s.Type == "" {
			return nil, fmt.Errorf("step %d: type is required", i)
		}
	}
	return &wf, nil
}

// ExecConfig — зависимости локального выполнения.
type ExecConfig struct {
	// Registry — реестр executor'ов (опционально).
	Registry *steps.Registry

	// Clock — часы (опционально; по умолчанию системные).
	Clock steps.Clock

	Logger *slog.Logger
}

// ExecuteWorkflowFile выполняет workflow без сервера: в памяти процесса.
// Шаги неизвестного типа не отсекаются заранее: run завершится на них
// с ошибкой, как и на сервере.
func ExecuteWorkflowFile(ctx context.Context, file *WorkflowFile, cfg ExecConfig) (*domain.Run, []domain.LogEntry, error) {
	db := repo.NewMemoryDB()

	now := time.Now().UTC()
	wf := &domain.Workflow{
		ID:          uuid.New(),
		Name:        file.Name,
		Description: file.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Workflows().Create(ctx, wf); err != nil {
		return nil, nil, err
	}

	for _, s := range file.Steps {
		step := &domain.Step{
			ID:         uuid.New(),
			WorkflowID: wf.ID,
			Type:       domain.StepType(s.Type),
			Config:     s.Config,
			CreatedAt:  now,
		}
		if err := db.Workflows().AddStep(ctx, step); err != nil {
			return nil, nil, err
		}
	}

	stepDefs, err := db.Workflows().ListSteps(ctx, wf.ID)
	if err != nil {
		return nil, nil, err
	}

	eng := engine.New(engine.Config{
		Runs:     db.Runs(),
		Logs:     db.Logs(),
		Registry: cfg.Registry,
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
	})

	run, err := eng.Execute(ctx, wf.ID, stepDefs)
	if err != nil {
		return nil, nil, err
	}

	entries, err := db.Logs().ListByRun(ctx, run.ID)
	if err != nil {
		return run, nil, err
	}
	return run, entries, nil
}

// NewExecCmd создаёт команду локального выполнения workflow из файла.
func NewExecCmd(outputFn func() *Output) *cobra.Command {
	var file string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a workflow file locally without the API server",
		Example: `  stepflow exec -f health.yaml
  cat health.yaml | stepflow exec -f -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			wf, err := readWorkflowFile(cmd, file)
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := telemetry.NewLogger(cmd.ErrOrStderr(), "text", level)

			run, entries, err := ExecuteWorkflowFile(cmd.Context(), wf, ExecConfig{Logger: logger})
			if err != nil {
				return err
			}

			printRun(out, localRunResponse(run, entries))

			if run.Status == domain.RunStatusFailed {
				return fmt.Errorf("%w: %s", ErrRunFailed, run.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Workflow YAML file, - for stdin (required)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print engine diagnostics to stderr")
	cmd.MarkFlagRequired("file")

	return cmd
}

func readWorkflowFile(cmd *cobra.Command, path string) (*WorkflowFile, error) {
	if path == "-" {
		return LoadWorkflowFile(cmd.InOrStdin())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	defer f.Close()

	wf, err := LoadWorkflowFile(f)
	if err != nil {
		return nil, err
	}
	if wf.Name == "" {
		wf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return wf, nil
}

// localRunResponse приводит локальный run к виду ответа API.
func localRunResponse(run *domain.Run, entries []domain.LogEntry) *RunResponse {
	resp := &RunResponse{
		ID:         run.ID.String(),
		WorkflowID: run.WorkflowID.String(),
		Status:     string(run.Status),
		StartedAt:  run.StartedAt.Format(time.RFC3339Nano),
		DurationMs: run.Duration().Milliseconds(),
		Error:      run.Error,
	}
	if run.CompletedAt != nil {
		resp.CompletedAt = run.CompletedAt.Format(time.RFC3339Nano)
	}

	resp.Logs = make([]LogEntry, len(entries))
	for i, e := range entries {
		entry := LogEntry{
			ID:       e.ID,
			RunID:    e.RunID.String(),
			Level:    string(e.Level),
			Message:  e.Message,
			LoggedAt: e.LoggedAt.Format(time.RFC3339Nano),
		}
		if e.StepID != nil {
			entry.StepID = e.StepID.String()
		}
		resp.Logs[i] = entry
	}
	return resp
}
