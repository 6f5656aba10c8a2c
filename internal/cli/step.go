package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewStepCmd создаёт группу команд для управления шагами workflow.
func NewStepCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Manage workflow steps",
	}

	cmd.AddCommand(
		newStepAddCmd(clientFn, outputFn),
		newStepMoveCmd(clientFn, outputFn),
		newStepDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

var stepHeaders = []string{"ORDER", "ID", "TYPE", "CONFIG"}

func stepRows(steps []StepResponse) [][]string {
	rows := make([][]string, len(steps))
	for i, s := range steps {
		config, _ := json.Marshal(s.Config)
		rows[i] = []string{strconv.Itoa(s.Order), s.ID, s.Type, string(config)}
	}
	return rows
}

func newStepAddCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var stepType string
	var configPairs []string

	cmd := &cobra.Command{
		Use:   "add WORKFLOW_ID",
		Short: "Append a step to a workflow",
		Example: `  stepflow step add WF_ID --type delay --config seconds=2
  stepflow step add WF_ID --type http_check --config url=https://example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			config, err := ParseConfigPairs(configPairs)
			if err != nil {
				return err
			}

			step, err := client.AddStep(cmd.Context(), args[0], stepType, config)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Step added: %s", step.ID))
			out.Print(stepHeaders, stepRows([]StepResponse{*step}), step)
			return nil
		},
	}

	cmd.Flags().StringVar(&stepType, "type", "", "Step type: delay or http_check (required)")
	cmd.Flags().StringArrayVar(&configPairs, "config", nil, "Step config as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("type")

	return cmd
}

func newStepMoveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var direction string

	cmd := &cobra.Command{
		Use:   "move WORKFLOW_ID STEP_ID",
		Short: "Move a step up or down",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if direction != "up" && direction != "down" {
				return fmt.Errorf("invalid value for --direction: %s (expected up or down)", direction)
			}

			steps, err := client.MoveStep(cmd.Context(), args[0], args[1], direction)
			if err != nil {
				return err
			}

			out.Success("Step moved")
			out.Print(stepHeaders, stepRows(steps), steps)
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "", "up or down (required)")
	cmd.MarkFlagRequired("direction")

	return cmd
}

func newStepDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete WORKFLOW_ID STEP_ID",
		Short: "Delete a step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteStep(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Step deleted: %s", args[1]))
			return nil
		},
	}
}

// ParseConfigPairs собирает config шага из пар KEY=VALUE.
// Целые числа сохраняются как числа, остальное — как строки.
func ParseConfigPairs(pairs []string) (map[string]any, error) {
	config := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid config format %q, expected KEY=VALUE", kv)
		}
		if n, err := strconv.Atoi(value); err == nil {
			config[key] = n
		} else {
			config[key] = value
		}
	}
	return config, nil
}
