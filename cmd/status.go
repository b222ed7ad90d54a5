package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tablesmith/tablesmith/internal/console"
)

var statusCmd = &cobra.Command{
	Use:   "status [table]",
	Short: "List drafts, or show one table's draft",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		if len(args) == 0 {
			tables, err := eng.Drafts()
			if err != nil {
				return err
			}
			if len(tables) == 0 {
				fmt.Println("No drafts.")
				return nil
			}
			fmt.Println("Drafts:")
			for _, t := range tables {
				fmt.Printf("  %s\n", t)
			}
			return nil
		}

		s, err := eng.Draft(cmd.Context(), args[0], nil)
		if err != nil {
			return err
		}
		fmt.Print(console.Snapshot(s.Snapshot()))
		fmt.Println()
		fmt.Print(console.Pending(s.Table(), s.Pending()))
		if len(s.Pending()) > 0 {
			fmt.Println()
			fmt.Println("After commit:")
			fmt.Print(console.Snapshot(s.Preview()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
