package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mir/fiddle-test-cov/internal/db"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Run history database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
		return nil
	},
}

var dbResetYes bool

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the database (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !dbResetYes {
			return errors.New("refusing to drop run history without --yes")
		}
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		if s.DatabaseURL == "" {
			return errors.New("no database configured; set database_url, COVDIFF_DATABASE_URL or --database-url")
		}
		d, err := db.Open(cmd.Context(), s.DatabaseURL)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database reset.")
		return nil
	},
}

func init() {
	dbResetCmd.Flags().BoolVar(&dbResetYes, "yes", false, "confirm dropping all recorded runs")
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
