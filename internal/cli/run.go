package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
	"github.com/shaiso/Taskflow/internal/mq"
)

// PublisherFunc лениво создаёт publisher для асинхронного запуска.
// Возвращаемая функция закрывает соединение.
type PublisherFunc func(ctx context.Context) (mq.MessagePublisher, func(), error)

// RunResult — результат выполнения flow.
type RunResult struct {
	FlowID     string                    `json:"flow_id"`
	State      domain.FlowState          `json:"state"`
	DurationMs int64                     `json:"duration_ms"`
	Outputs    map[string]map[string]any `json:"outputs"`
}

// NewRunCmd создаёт команду выполнения flow.
func NewRunCmd(wsFn WorkspaceFunc, pubFn PublisherFunc, outputFn func() *Output) *cobra.Command {
	var async bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run FLOW_ID",
		Short: "Execute a flow",
		Long: `Execute a flow locally and print task outputs.

With --async the flow is not executed here: an execute request is published
to the flows.execute queue and a worker picks it up.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			ws, err := wsFn(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			f, err := ws.Flow(args[0])
			if err != nil {
				return err
			}

			if async {
				return runAsync(ctx, pubFn, outputFn(), f.ID())
			}
			return runSync(ctx, f, outputFn())
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "Publish an execute request instead of running locally")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Cancel execution after this duration (e.g. 30s)")

	return cmd
}

func runSync(ctx context.Context, f *engine.Flow, out *Output) error {
	start := time.Now()
	state, outputs := f.ExecuteWithOutputs(ctx)

	res := RunResult{
		FlowID:     f.ID(),
		State:      state,
		DurationMs: time.Since(start).Milliseconds(),
		Outputs:    outputs,
	}

	taskIDs := make([]string, 0, len(outputs))
	for id := range outputs {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(taskIDs)

	var rows [][]string
	for _, id := range taskIDs {
		values := outputs[id]
		ports := make([]string, 0, len(values))
		for p := range values {
			ports = append(ports, p)
		}
		sort.Strings(ports)
		for _, p := range ports {
			rows = append(rows, []string{id, p, formatValue(values[p])})
		}
	}

	out.Print([]string{"TASK_ID", "PORT", "VALUE"}, rows, res)
	out.Success(fmt.Sprintf("Flow %s finished: %s in %sms", res.FlowID, res.State, strconv.FormatInt(res.DurationMs, 10)))

	if !state.IsSuccess() {
		return fmt.Errorf("flow %s finished with state %s", f.ID(), state)
	}
	return nil
}

func runAsync(ctx context.Context, pubFn PublisherFunc, out *Output, flowID string) error {
	if pubFn == nil {
		return errors.New("async execution is not configured")
	}

	pub, closeFn, err := pubFn(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	requestID, err := mq.RequestExecute(ctx, pub, flowID)
	if err != nil {
		return fmt.Errorf("publish execute request: %w", err)
	}

	out.Print(
		[]string{"FLOW_ID", "REQUEST_ID"},
		[][]string{{flowID, requestID}},
		map[string]string{"flow_id": flowID, "request_id": requestID},
	)
	out.Success(fmt.Sprintf("Execute request published: %s", requestID))
	return nil
}
