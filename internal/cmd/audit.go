package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/warden/internal/audit"
	"github.com/dativo-io/warden/internal/config"
)

var (
	auditKind  string
	auditLimit int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent safety events (denials, confirmations, flagged input)",
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditKind, "kind", "", "filter by kind (access_denied, injection_flagged, confirmation, rate_limited)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum events to show")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := audit.NewStore(cfg.AuditDBPath())
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer store.Close()

	events, err := store.Recent(ctx, auditKind, auditLimit)
	if err != nil {
		return fmt.Errorf("querying audit log: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("No audit events recorded yet.")
		return nil
	}

	for _, ev := range events {
		line := fmt.Sprintf("%s | %-18s", ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Kind)
		if ev.Outcome != "" {
			line += " | " + ev.Outcome
		}
		if ev.Actor != "" {
			line += " | actor=" + ev.Actor
		}
		if ev.Operation != "" {
			line += " | op=" + ev.Operation
		}
		if ev.Detail != "" {
			line += " | " + ev.Detail
		}
		fmt.Println(line)
	}
	return nil
}
