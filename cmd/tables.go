package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tablesmith/tablesmith/internal/console"
	"github.com/tablesmith/tablesmith/internal/schema"
)

var createColumns []string

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List tables with their columns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		tables, err := eng.Tables(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(console.Tables(tables))
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <table>",
	Short: "Show a table's columns and constraints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		snap, err := eng.Describe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Print(console.Snapshot(snap))
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create <table>",
	Short: "Create a table",
	Long: `Create a table from --column flags of the form name:type[:pk][:fk=table.column].

Example:
  tablesmith create orders --column id:integer:pk --column customer_id:integer:fk=customers.id`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := schema.TableSpec{TableName: args[0]}
		for _, def := range createColumns {
			col, err := parseColumn(def)
			if err != nil {
				return err
			}
			spec.Columns = append(spec.Columns, col)
		}

		eng, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		if err := eng.CreateTable(cmd.Context(), spec); err != nil {
			return err
		}
		fmt.Print(console.Success(fmt.Sprintf("created %s", spec.TableName)))
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <table>",
	Short: "Drop a table and its draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		if err := eng.DropTable(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Print(console.Success(fmt.Sprintf("dropped %s", args[0])))
		return nil
	},
}

// parseColumn parses name:type[:pk][:fk=table.column].
func parseColumn(def string) (schema.Column, error) {
	parts := strings.Split(def, ":")
	if len(parts) < 2 {
		return schema.Column{}, fmt.Errorf("column %q: want name:type[:pk][:fk=table.column]", def)
	}
	dt, err := schema.ParseDataType(parts[1])
	if err != nil {
		return schema.Column{}, err
	}
	col := schema.Column{Name: parts[0], DataType: dt}
	for _, opt := range parts[2:] {
		switch {
		case opt == "pk":
			col.Constraints = append(col.Constraints, schema.PrimaryKey())
		case strings.HasPrefix(opt, "fk="):
			table, column, ok := strings.Cut(strings.TrimPrefix(opt, "fk="), ".")
			if !ok || table == "" || column == "" {
				return schema.Column{}, fmt.Errorf("column %q: foreign key must be table.column", def)
			}
			col.Constraints = append(col.Constraints, schema.ForeignKey(table, column))
		default:
			return schema.Column{}, fmt.Errorf("column %q: unknown option %q", def, opt)
		}
	}
	return col, nil
}

func init() {
	createCmd.Flags().StringArrayVar(&createColumns, "column", nil, "column definition name:type[:pk][:fk=table.column] (repeatable)")
	createCmd.MarkFlagRequired("column")
	rootCmd.AddCommand(tablesCmd, describeCmd, createCmd, dropCmd)
}
