package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tablesmith/tablesmith/internal/config"
	"github.com/tablesmith/tablesmith/internal/ident"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and validate Tablesmith configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fmt.Println("Current configuration:")
		fmt.Println()
		fmt.Printf("  Database:\n")
		fmt.Printf("    Host:           %s\n", cfg.Database.Host)
		fmt.Printf("    Port:           %d\n", cfg.Database.Port)
		fmt.Printf("    Database:       %s\n", cfg.Database.Database)
		fmt.Printf("    Schema:         %s\n", cfg.Database.Schema)
		fmt.Printf("    Username:       %s\n", cfg.Database.Username)
		fmt.Printf("    Password:       %s\n", maskSecret(cfg.Database.Password))
		fmt.Printf("    Max Conns:      %d\n", cfg.Database.MaxConnections)
		fmt.Println()
		fmt.Printf("  Audit:            %v (%s)\n", cfg.AuditEnabled(), cfg.Audit.Path)
		fmt.Printf("  Drafts:           %s\n", cfg.Drafts.Directory)
		fmt.Printf("  Logs:             %s (%s)\n", cfg.Logging.Directory, cfg.Logging.Level)
		fmt.Printf("  Server port:      %d\n", cfg.Server.Port)

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		var errors []string
		if cfg.Database.Host == "" {
			errors = append(errors, "database.host is required")
		}
		if cfg.Database.Database == "" {
			errors = append(errors, "database.database is required")
		}
		if cfg.Database.Username == "" {
			errors = append(errors, "database.username is required")
		}
		if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
			errors = append(errors, fmt.Sprintf("database.port %d is out of range", cfg.Database.Port))
		}
		if err := ident.Validate("schema", cfg.Database.Schema); err != nil {
			errors = append(errors, fmt.Sprintf("database.schema: %v", err))
		}
		if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
			errors = append(errors, fmt.Sprintf("server.port %d is out of range", cfg.Server.Port))
		}

		if len(errors) > 0 {
			fmt.Println("Validation errors:")
			for _, e := range errors {
				fmt.Printf("  - %s\n", e)
			}
			return fmt.Errorf("%d validation error(s)", len(errors))
		}

		fmt.Println("Configuration is valid.")
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
