package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/axelsure/claimflow/pkg/audit"
	"github.com/axelsure/claimflow/pkg/config"
	"github.com/axelsure/claimflow/pkg/presenter"
	"github.com/axelsure/claimflow/pkg/store"
)

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Inspect and manage claim sessions",
}

var claimsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all claim sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, _, err := openSessions()
		if err != nil {
			return err
		}

		ids, err := sessions.ScanClaims(nil)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			presenter.Info("No claims found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CLAIM ID\tSTAGE\tSENDER\tINCIDENT TYPES\tUPDATED")
		for _, id := range ids {
			c, err := sessions.LoadClaim(id)
			if err != nil || c == nil {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				c.ClaimID, c.Stage, c.SenderEmail,
				strings.Join(c.IncidentTypes, ","),
				c.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var claimsShowCmd = &cobra.Command{
	Use:   "show <claim-id>",
	Short: "Show one claim session in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, cfg, err := openSessions()
		if err != nil {
			return err
		}
		claimID := args[0]

		c, err := sessions.LoadClaim(claimID)
		if err != nil {
			return err
		}
		if c == nil {
			return errors.Errorf("claim not found: %s", claimID)
		}

		presenter.Section("Claim")
		fmt.Printf("ID:        %s\n", c.ClaimID)
		fmt.Printf("Stage:     %s\n", c.Stage)
		fmt.Printf("Sender:    %s\n", c.SenderEmail)
		fmt.Printf("Subject:   %s\n", c.Subject)
		fmt.Printf("Incidents: %s\n", strings.Join(c.IncidentTypes, ", "))
		fmt.Printf("Completed: %s\n", strings.Join(c.CompletedAgents, ", "))
		if c.IncidentDescription != "" {
			fmt.Printf("Summary:   %s\n", c.IncidentDescription)
		}

		decisions, err := sessions.Decisions(claimID)
		if err != nil {
			return err
		}
		if len(decisions) > 0 {
			presenter.Section("Decisions")
			for _, d := range decisions {
				fmt.Printf("%s: %s\n", d.Agent, string(d.Decision))
			}
		}

		cctx, err := sessions.LoadContext(claimID)
		if err != nil {
			return err
		}
		if len(cctx.ConversationHistory) > 0 {
			presenter.Section("Conversation")
			for _, entry := range cctx.ConversationHistory {
				fmt.Printf("[%s] %s: %s\n", entry.Timestamp.Format("2006-01-02 15:04"), entry.Role, entry.Content)
			}
		}

		if showAuditTrail {
			recorder, err := audit.Open(cmd.Context(), cfg.AuditDB)
			if err != nil {
				return errors.Wrap(err, "failed to open audit database")
			}
			defer recorder.Close()

			events, err := recorder.List(cmd.Context(), claimID)
			if err != nil {
				return err
			}
			if len(events) > 0 {
				presenter.Section("Audit Trail")
				for _, e := range events {
					fmt.Printf("[%s] %s %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.Detail)
				}
			}
		}
		return nil
	},
}

var claimsDeleteCmd = &cobra.Command{
	Use:   "delete <claim-id>",
	Short: "Delete one claim session and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, _, err := openSessions()
		if err != nil {
			return err
		}
		claimID := args[0]

		c, err := sessions.LoadClaim(claimID)
		if err != nil {
			return err
		}
		if c == nil {
			return errors.Errorf("claim not found: %s", claimID)
		}
		if err := sessions.DeleteClaim(claimID); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Deleted claim %s", claimID))
		return nil
	},
}

var showAuditTrail bool

func init() {
	claimsShowCmd.Flags().BoolVar(&showAuditTrail, "audit", false, "include the audit trail")
	claimsCmd.AddCommand(claimsListCmd)
	claimsCmd.AddCommand(claimsShowCmd)
	claimsCmd.AddCommand(claimsDeleteCmd)
}

func openSessions() (*store.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	sessions, err := store.New(cfg.SessionDir)
	if err != nil {
		return nil, nil, err
	}
	return sessions, cfg, nil
}
