package commands

import (
	"encoding/json"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/f7las/gatekeeper/internal/contract"
	"github.com/f7las/gatekeeper/internal/render"
)

func NewContractsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Inspect registered tool contracts",
	}
	cmd.AddCommand(newContractsListCmd(), newContractsShowCmd())
	return cmd
}

func newContractsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tool contracts",
		RunE:  runContractsList,
	}
}

func newContractsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <tool>",
		Short: "Show one contract and the query it renders with defaults",
		Args:  cobra.ExactArgs(1),
		RunE:  runContractsShow,
	}
	cmd.Flags().Bool("dump", false, "Dump the parsed Go value")
	return cmd
}

func loadContracts() (*contract.Registry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return contract.LoadRegistry(cfg.ContractsPath())
}

func runContractsList(cmd *cobra.Command, args []string) error {
	reg, err := loadContracts()
	if err != nil {
		return err
	}
	specs := reg.List()
	if len(specs) == 0 {
		fmt.Println("No tool contracts.")
		return nil
	}

	rows := make([][]any, 0, len(specs))
	for _, spec := range specs {
		rows = append(rows, []any{spec.Name, spec.Action, spec.Resource, spec.Constraints.MaxLimit})
	}
	fmt.Println(render.Header("Tool Contracts"))
	fmt.Println(render.Table([]string{"NAME", "ACTION", "RESOURCE", "MAX LIMIT"}, rows))
	fmt.Println(render.Dim(fmt.Sprintf("  %s", reg.Path())))
	return nil
}

func runContractsShow(cmd *cobra.Command, args []string) error {
	dump := false
	if cmd != nil {
		dump, _ = cmd.Flags().GetBool("dump")
	}

	reg, err := loadContracts()
	if err != nil {
		return err
	}
	spec, ok := reg.Lookup(args[0])
	if !ok {
		return &contract.UnknownToolError{Tool: args[0]}
	}

	if dump {
		fmt.Print(spew.Sdump(spec))
	} else {
		data, err := json.MarshalIndent(spec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}

	resolved, err := reg.Resolve(spec.Name, nil)
	if err != nil {
		fmt.Printf("\nDefault query: not renderable (%v)\n", err)
		return nil
	}
	fmt.Printf("\nDefault query (limit %d, time filter %t):\n%s\n", resolved.Limit, resolved.HasTimeFilter, resolved.Query)
	return nil
}
