package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

// TypesResult — зарегистрированные типы tasks и шаблоны flows.
type TypesResult struct {
	Tasks []string `json:"tasks"`
	Flows []string `json:"flows"`
}

// NewTypesCmd создаёт команду со списком типов tasks и шаблонов flows.
func NewTypesCmd(reg *engine.Registry, flowReg *engine.FlowRegistry, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List available task types and flow types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := TypesResult{Tasks: reg.Types(), Flows: flowReg.Types()}

			var rows [][]string
			for _, t := range res.Tasks {
				rows = append(rows, []string{"task", t})
			}
			for _, t := range res.Flows {
				rows = append(rows, []string{"flow", t})
			}

			outputFn().Print([]string{"KIND", "TYPE"}, rows, res)
			return nil
		},
	}
}

// NewFlowCmd создаёт группу команд для управления flows.
func NewFlowCmd(wsFn WorkspaceFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage flows",
	}

	cmd.AddCommand(
		newFlowListCmd(wsFn, outputFn),
		newFlowShowCmd(wsFn, outputFn),
		newFlowOrderCmd(wsFn, outputFn),
		newFlowValidateCmd(wsFn, outputFn),
		newFlowImportCmd(wsFn, outputFn),
		newFlowCreateCmd(wsFn, outputFn),
		newFlowDeleteCmd(wsFn, outputFn),
	)

	return cmd
}

func newFlowListCmd(wsFn WorkspaceFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := wsFn(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			type flowRow struct {
				FlowID      string `json:"flow_id"`
				Tasks       int    `json:"tasks"`
				Connections int    `json:"connections"`
			}

			flows := ws.Manager.Flows()
			data := make([]flowRow, len(flows))
			rows := make([][]string, len(flows))
			for i, f := range flows {
				data[i] = flowRow{FlowID: f.ID(), Tasks: f.Len(), Connections: len(f.Connections())}
				rows[i] = []string{f.ID(), strconv.Itoa(data[i].Tasks), strconv.Itoa(data[i].Connections)}
			}

			outputFn().Print([]string{"FLOW_ID", "TASKS", "CONNECTIONS"}, rows, data)
			return nil
		},
	}
}

func newFlowShowCmd(wsFn WorkspaceFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show FLOW_ID",
		Short: "Show flow tasks and connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := wsFn(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			f, err := ws.Flow(args[0])
			if err != nil {
				return err
			}

			doc := f.Document()
			out := outputFn()
			if out.jsonMode {
				out.JSON(doc)
				return nil
			}

			rows := make([][]string, len(doc.Tasks))
			for i, t := range doc.Tasks {
				rows[i] = []string{t.TaskID, t.TaskType, formatParams(t.Params)}
			}
			out.Table([]string{"TASK_ID", "TYPE", "PARAMS"}, rows)

			if len(doc.Connections) > 0 {
				fmt.Fprintln(out.w)
				conns := make([][]string, len(doc.Connections))
				for i, c := range doc.Connections {
					conns[i] = []string{c}
				}
				out.Table([]string{"CONNECTION"}, conns)
			}
			return nil
		},
	}
}

func newFlowOrderCmd(wsFn WorkspaceFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "order FLOW_ID",
		Short: "Show execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := wsFn(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			f, err := ws.Flow(args[0])
			if err != nil {
				return err
			}

			layers, err := f.ExecutionLayers()
			if err != nil {
				return fmt.Errorf("flow %s: %w", f.ID(), err)
			}

			ids := make([][]string, len(layers))
			var rows [][]string
			for i, layer := range layers {
				ids[i] = make([]string, len(layer))
				for j, t := range layer {
					ids[i][j] = t.ID()
					rows = append(rows, []string{strconv.Itoa(i), t.ID(), t.Type()})
				}
			}

			outputFn().Print([]string{"LAYER", "TASK_ID", "TYPE"}, rows, ids)
			return nil
		},
	}
}

func newFlowValidateCmd(wsFn WorkspaceFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FLOW_ID",
		Short: "Check connections and cycles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := wsFn(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			f, err := ws.Flow(args[0])
			if err != nil {
				return err
			}

			if err := f.Validate(); err != nil {
				return fmt.Errorf("flow %s is invalid: %w", f.ID(), err)
			}

			outputFn().Success(fmt.Sprintf("Flow %s is valid", f.ID()))
			return nil
		},
	}
}

func newFlowImportCmd(wsFn WorkspaceFunc, outputFn func() *Output) *cobra.Command {
	var flowID string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Add or replace a flow from a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read flow file: %w", err)
			}

			var doc domain.FlowDocument
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("%w: %v", engine.ErrMalformedDocument, err)
			}
			if flowID != "" {
				doc.FlowID = flowID
			}
			if doc.FlowID == "" {
				return errors.New("flowId is required (set it in the document or use --id)")
			}

			ws, err := wsFn(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			f, replaced, err := ws.Manager.AddFlowDocument(doc)
			if err != nil {
				return err
			}
			if err := ws.Save(cmd.Context()); err != nil {
				return err
			}

			verb := "imported"
			if replaced {
				verb = "replaced"
			}
			outputFn().Success(fmt.Sprintf("Flow %s %s: %d tasks, %d connections",
				f.ID(), verb, f.Len(), len(f.Connections())))
			return nil
		},
	}

	cmd.Flags().StringVar(&flowID, "id", "", "Override flowId from the document")

	return cmd
}

func newFlowCreateCmd(wsFn WorkspaceFunc, outputFn func() *Output) *cobra.Command {
	var flowID string

	cmd := &cobra.Command{
		Use:   "create FLOW_TYPE",
		Short: "Create a flow from a registered flow type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := wsFn(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			f, replaced, err := ws.Manager.CreateFlowFromType(args[0], flowID)
			if err != nil {
				return err
			}
			if err := ws.Save(cmd.Context()); err != nil {
				return err
			}

			verb := "created"
			if replaced {
				verb = "replaced"
			}
			outputFn().Success(fmt.Sprintf("Flow %s %s from %s: %d tasks, %d connections",
				f.ID(), verb, args[0], f.Len(), len(f.Connections())))
			return nil
		},
	}

	cmd.Flags().StringVar(&flowID, "id", "", "Flow ID (generated if empty)")

	return cmd
}

func newFlowDeleteCmd(wsFn WorkspaceFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete FLOW_ID",
		Short: "Delete a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := wsFn(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			if !ws.Manager.RemoveFlow(args[0]) {
				return fmt.Errorf("%w: %s", engine.ErrFlowNotFound, args[0])
			}
			if err := ws.Save(cmd.Context()); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Flow deleted: %s", args[0]))
			return nil
		},
	}
}

// formatParams форматирует параметры как key=value через запятую.
func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + formatValue(params[k])
	}
	return strings.Join(parts, ", ")
}
