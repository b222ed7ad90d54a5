package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tablesmith/tablesmith/internal/console"
	"github.com/tablesmith/tablesmith/internal/schema"
)

var planOut string

var planCmd = &cobra.Command{
	Use:   "plan <table>",
	Short: "Show the DDL a commit would run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		s, err := eng.Draft(cmd.Context(), args[0], nil)
		if err != nil {
			return err
		}
		stmts, err := s.Statements(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(console.Plan(stmts))

		if planOut != "" {
			script := &schema.Script{Table: args[0], Changes: schema.Records(s.Pending())}
			if err := script.WriteYAML(planOut); err != nil {
				return err
			}
			fmt.Print(console.Success(fmt.Sprintf("changes written to %s", planOut)))
		}
		return nil
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit <table>",
	Short: "Apply a table's draft in one transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		stmts, err := eng.CommitDraft(cmd.Context(), args[0])
		if len(stmts) > 0 {
			fmt.Print(console.Plan(stmts))
		}
		if err != nil {
			return err
		}
		if len(stmts) == 0 {
			return nil
		}
		fmt.Print(console.Success(fmt.Sprintf("committed %d statement(s)", len(stmts))))
		return nil
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <table>",
	Short: "Forget a table's draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		release, err := eng.LockDraft(args[0])
		if err != nil {
			return err
		}
		defer release()

		if err := eng.DiscardDraft(args[0]); err != nil {
			return err
		}
		fmt.Print(console.Success(fmt.Sprintf("discarded draft for %s", args[0])))
		return nil
	},
}

func init() {
	planCmd.Flags().StringVarP(&planOut, "out", "o", "", "also write the pending changes as a script file")
	rootCmd.AddCommand(planCmd, commitCmd, discardCmd)
}
