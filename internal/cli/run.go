package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage pipeline runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunWatchCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns()
			if err != nil {
				return err
			}

			// Фильтр на стороне клиента: API отдаёт все runs
			if status != "" {
				filtered := runs[:0]
				for _, r := range runs {
					if strings.EqualFold(r.Status, status) {
						filtered = append(filtered, r)
					}
				}
				runs = filtered
			}

			headers := []string{"ID", "STATUS", "STAGE", "STAGES", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.Status, r.CurrentStage(), strconv.Itoa(len(r.Stages)), r.CreatedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (running, success, cancelled)")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var inputs []string
	var watch bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new pipeline run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payload, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			if !watch {
				id, err := client.StartRun(payload)
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Run started: %s", id))
				out.Print([]string{"ID"}, [][]string{{id}}, StartRunResponse{ID: id})
				return nil
			}

			// Подписка до запуска: иначе первые события можно пропустить
			ctx := cmd.Context()
			stream, err := client.Subscribe(ctx)
			if err != nil {
				return err
			}
			defer stream.Close()

			id, err := client.StartRun(payload)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Run started: %s", id))

			return consume(ctx, stream, followRun(id, out))
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Payload values as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Stream run events until the pipeline is done")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			headers := []string{"STAGE", "STATUS", "STARTED", "FINISHED"}
			rows := make([][]string, len(run.Stages))
			for i, s := range run.Stages {
				rows[i] = []string{s.Name, s.Status, s.StartedAt, orDash(s.FinishedAt)}
			}

			out.Success(fmt.Sprintf("Run %s: %s", run.ID, run.Status))
			out.Print(headers, rows, run)
			return nil
		},
	}
}

func newRunWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [ID]",
		Short: "Stream run events (all runs if ID is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if len(args) == 0 {
				return client.Watch(cmd.Context(), printAll(out))
			}
			return client.Watch(cmd.Context(), followRun(args[0], out))
		},
	}
}

// followRun печатает события одного run и останавливается на pipeline_done.
func followRun(id string, out *Output) func(StreamMessage) error {
	return func(msg StreamMessage) error {
		ev, err := msg.Decode()
		if err != nil {
			return err
		}
		if ev.PID != id {
			return nil
		}

		out.Event(msg, ev)
		if msg.Event == "pipeline_done" {
			return ErrStopWatch
		}
		return nil
	}
}

func printAll(out *Output) func(StreamMessage) error {
	return func(msg StreamMessage) error {
		ev, err := msg.Decode()
		if err != nil {
			return err
		}
		out.Event(msg, ev)
		return nil
	}
}

func parseInputs(inputs []string) (map[string]any, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	payload := make(map[string]any, len(inputs))
	for _, kv := range inputs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		payload[key] = value
	}
	return payload, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
