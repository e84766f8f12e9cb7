package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/f7las/gatekeeper/internal/audit"
	"github.com/f7las/gatekeeper/internal/render"
)

func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the local audit trail",
	}
	cmd.AddCommand(newAuditTailCmd())
	return cmd
}

func newAuditTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent audit records",
		RunE:  runAuditTail,
	}
	cmd.Flags().String("run-id", "", "Only records for this run")
	cmd.Flags().IntP("lines", "n", 20, "Number of records to show (0 = all)")
	cmd.Flags().Bool("json", false, "Print records as JSON lines")
	return cmd
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	runID, _ := cmd.Flags().GetString("run-id")
	n, _ := cmd.Flags().GetInt("lines")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	path := cfg.AuditFilePath()
	records, err := audit.ReadFile(path, runID)
	if err != nil {
		return err
	}
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	if len(records) == 0 {
		fmt.Printf("No audit records in %s\n", path)
		return nil
	}

	if asJSON {
		for _, rec := range records {
			line, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			fmt.Println(string(line))
		}
		return nil
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			rec.Timestamp.Format("2006-01-02T15:04:05.000000Z"),
			rec.RunID,
			rec.Stage,
			summarizeRecord(rec),
		})
	}
	fmt.Println(render.Header("Audit Trail"))
	fmt.Println(render.Table([]string{"TIME", "RUN", "STAGE", "DETAIL"}, rows))
	return nil
}

func summarizeRecord(rec audit.Record) string {
	for _, key := range []string{"decision", "status", "reason", "error"} {
		if v, ok := rec.Data[key]; ok && v != nil && fmt.Sprint(v) != "" {
			detail := fmt.Sprint(v)
			if action, ok := rec.Data["action"]; ok {
				detail = fmt.Sprintf("%v %s", action, detail)
			}
			return detail
		}
	}
	if rc, ok := rec.Data["rowcount"]; ok {
		return fmt.Sprintf("%v rows=%v", rec.Data["action"], rc)
	}
	return "-"
}
