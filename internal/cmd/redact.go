package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dativo-io/warden/internal/access"
	"github.com/dativo-io/warden/internal/redact"
)

var redactAdmin bool

var redactCmd = &cobra.Command{
	Use:   "redact [json]",
	Short: "Redact a JSON document the way the agent would see it",
	Long: `Applies the deployed redaction policy to a JSON document and prints
the result. Reads from stdin when no argument is given. Useful for
checking what a non-admin user would see for a given ATS payload.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().BoolVar(&redactAdmin, "admin", false, "redact as an admin (no-op; shows the document unchanged)")
	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, args []string) error {
	_, span := tracer.Start(cmd.Context(), "redact")
	defer span.End()

	var doc string
	if len(args) == 1 {
		doc = args[0]
	} else {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		doc = string(raw)
	}

	engine, err := redact.NewEngine()
	if err != nil {
		return fmt.Errorf("loading redaction policy: %w", err)
	}

	role := access.RoleUser
	if redactAdmin {
		role = access.RoleAdmin
	}
	fmt.Println(engine.RedactJSON(doc, role))
	return nil
}
