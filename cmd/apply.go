package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tablesmith/tablesmith/internal/console"
	"github.com/tablesmith/tablesmith/internal/schema"
)

var (
	applyFile   string
	applyDryRun bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a script of schema and row changes",
	Long: `Apply a YAML script against one table. Schema changes are folded and
committed in one transaction, then row edits run in a second one against
the table's new name. Drafts are not read or written.

Example script:
  table: users
  changes:
    - kind: add_column
      column: email
      type: text
  rows:
    - insert:
        columns: [id, email]
        values: ["", a@example.com]
        types: [INTEGER, TEXT]`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := schema.LoadScript(applyFile)
		if err != nil {
			return err
		}
		events, err := script.Events()
		if err != nil {
			return err
		}
		rowEvents, err := script.RowEvents()
		if err != nil {
			return err
		}

		eng, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		s, err := eng.Open(cmd.Context(), script.Table, nil)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := s.Apply(ev); err != nil {
				return fmt.Errorf("%s: %w", ev, err)
			}
		}
		fmt.Print(console.Pending(s.Table(), s.Pending()))

		stmts, err := s.Statements(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(console.Plan(stmts))

		if applyDryRun {
			if len(rowEvents) > 0 {
				fmt.Printf("%d row edit(s) not applied\n", len(rowEvents))
			}
			return nil
		}

		if len(stmts) > 0 {
			if err := s.Commit(cmd.Context()); err != nil {
				return err
			}
			fmt.Print(console.Success(fmt.Sprintf("committed %d statement(s)", len(stmts))))
		}

		if len(rowEvents) > 0 {
			if err := eng.ApplyRows(cmd.Context(), s.Table(), rowEvents); err != nil {
				return err
			}
			fmt.Print(console.Success(fmt.Sprintf("applied %d row edit(s) to %s", len(rowEvents), s.Table())))
		}
		return nil
	},
}

var (
	rowsColumns []string
	rowsOrder   []string
)

var rowsCmd = &cobra.Command{
	Use:   "rows <table>",
	Short: "Print a table's rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		res, err := eng.SelectRows(cmd.Context(), args[0], rowsColumns, rowsOrder)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, console.Rows(res))
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "script file")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "print the plan without running it")
	applyCmd.MarkFlagRequired("file")

	rowsCmd.Flags().StringSliceVar(&rowsColumns, "columns", nil, "columns to print (default: all)")
	rowsCmd.Flags().StringSliceVar(&rowsOrder, "order", nil, "columns to order by (default: primary key)")

	rootCmd.AddCommand(applyCmd, rowsCmd)
}
