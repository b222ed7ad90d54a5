package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tablesmith/tablesmith/internal/console"
	"github.com/tablesmith/tablesmith/internal/schema"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Stage a change in a table's draft",
	Long: `Stage one schema change in the draft of a table. Changes accumulate across
runs and are folded into the smallest equivalent set; nothing touches the
database until "tablesmith commit".`,
}

// editCommand builds an edit subcommand. build turns the arguments after
// the table name into the event to stage.
func editCommand(use, short string, nargs int, build func(args []string) (schema.Event, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs + 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := build(args[1:])
			if err != nil {
				return err
			}
			return stage(cmd, args[0], ev)
		},
	}
}

func stage(cmd *cobra.Command, table string, ev schema.Event) error {
	eng, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	release, err := eng.LockDraft(table)
	if err != nil {
		return err
	}
	defer release()

	s, err := eng.Draft(cmd.Context(), table, console.NewObserver(os.Stdout))
	if err != nil {
		return err
	}
	if err := s.Apply(ev); err != nil {
		return err
	}
	return eng.SaveDraft(s)
}

func init() {
	editCmd.AddCommand(
		editCommand("rename-table <table> <new-name>", "Rename the table", 1, func(a []string) (schema.Event, error) {
			return schema.RenameTable{NewName: a[0]}, nil
		}),
		editCommand("add-column <table> <column> <type>", "Add a column", 2, func(a []string) (schema.Event, error) {
			dt, err := schema.ParseDataType(a[1])
			if err != nil {
				return nil, err
			}
			return schema.AddColumn{Column: a[0], Type: dt}, nil
		}),
		editCommand("remove-column <table> <column>", "Remove a column", 1, func(a []string) (schema.Event, error) {
			return schema.RemoveColumn{Column: a[0]}, nil
		}),
		editCommand("rename-column <table> <column> <new-name>", "Rename a column", 2, func(a []string) (schema.Event, error) {
			return schema.RenameColumn{From: a[0], To: a[1]}, nil
		}),
		editCommand("change-type <table> <column> <type>", "Change a column's type", 2, func(a []string) (schema.Event, error) {
			dt, err := schema.ParseDataType(a[1])
			if err != nil {
				return nil, err
			}
			return schema.ChangeColumnType{Column: a[0], Type: dt}, nil
		}),
		editCommand("add-pk <table> <column>", "Add a column to the primary key", 1, func(a []string) (schema.Event, error) {
			return schema.AddPrimaryKey{Column: a[0]}, nil
		}),
		editCommand("remove-pk <table> <column>", "Remove a column from the primary key", 1, func(a []string) (schema.Event, error) {
			return schema.RemovePrimaryKey{Column: a[0]}, nil
		}),
		editCommand("add-fk <table> <column> <table.column>", "Reference another table", 2, func(a []string) (schema.Event, error) {
			table, column, ok := strings.Cut(a[1], ".")
			if !ok {
				return nil, fmt.Errorf("reference %q: want table.column", a[1])
			}
			return schema.AddForeignKey{Column: a[0], ReferencedTable: table, ReferencedColumn: column}, nil
		}),
		editCommand("remove-fk <table> <column>", "Drop a column's foreign key", 1, func(a []string) (schema.Event, error) {
			return schema.RemoveForeignKey{Column: a[0]}, nil
		}),
	)
	rootCmd.AddCommand(editCmd)
}
