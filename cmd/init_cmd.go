package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tablesmith/tablesmith/internal/config"
	"github.com/tablesmith/tablesmith/internal/console"
	"github.com/tablesmith/tablesmith/internal/engine"
	"github.com/tablesmith/tablesmith/internal/logging"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file interactively",
	Long:  `Walk through prompts to create a Tablesmith configuration file at ~/.tablesmith/tablesmith.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		fmt.Println("Tablesmith Configuration Setup")
		fmt.Println("==============================")
		fmt.Println()

		fmt.Println("PostgreSQL Database")
		fmt.Println("-------------------")
		host := prompt(reader, "Host", "localhost")
		portStr := prompt(reader, "Port", "5432")
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port: %s", portStr)
		}
		database := prompt(reader, "Database name", "postgres")
		schema := prompt(reader, "Schema", "public")
		username := prompt(reader, "Username", "postgres")
		password := prompt(reader, "Password (or ${ENV:VAR}, ${VAULT:path#key}, ${AWS_SM:name})", "${ENV:PGPASSWORD}")
		fmt.Println()

		cfg := config.Default()
		cfg.Database = config.DatabaseConfig{
			Host:     host,
			Port:     port,
			Database: database,
			Schema:   schema,
			Username: username,
			Password: password,
		}

		cfgPath := config.ExpandHome(config.DefaultPath)
		if cfgFile != "" {
			cfgPath = cfgFile
		}

		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Printf("Config written to %s\n", cfgPath)
		fmt.Println()

		if strings.HasPrefix(strings.ToLower(prompt(reader, "Test the connection now? (y/n)", "y")), "y") {
			if err := testConnection(cmd, cfgPath); err != nil {
				fmt.Print(console.Failure(err))
				fmt.Println("Fix the settings in the config file and run \"tablesmith tables\" to retry.")
				return nil
			}
		}
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  tablesmith tables            — List tables")
		fmt.Println("  tablesmith edit <kind> ...   — Stage changes to a table")
		fmt.Println("  tablesmith serve             — Start the session API")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// testConnection loads the file just written, connects and counts tables.
func testConnection(cmd *cobra.Command, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	eng, err := engine.Connect(cmd.Context(), cfg, logging.Discard())
	if err != nil {
		return err
	}
	defer eng.Close()

	tables, err := eng.Tables(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Print(console.Success(fmt.Sprintf("connected to %s: %d table(s) in schema %s", cfg.Database.Database, len(tables), cfg.Database.Schema)))
	return nil
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
