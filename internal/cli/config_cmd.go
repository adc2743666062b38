package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mir/fiddle-test-cov/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect settings and the repository list",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the repository list",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		repos, err := config.LoadRepos(s.ReposFile)
		if err != nil {
			return err
		}

		errs := config.Validate(repos)
		if len(errs) == 0 {
			cmd.Printf("Configuration is valid (%d repositories).\n", len(repos))
			return nil
		}

		cmd.Println("Validation errors:")
		for _, e := range errs {
			cmd.Printf("  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved settings and repository list with defaults merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		repos, err := config.LoadRepos(s.ReposFile)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "# settings")
		if err := s.WriteTOML(w); err != nil {
			return fmt.Errorf("encoding settings: %w", err)
		}

		fmt.Fprintf(w, "\n# repositories (%s)\n", s.ReposFile)
		data, err := yaml.Marshal(repos)
		if err != nil {
			return fmt.Errorf("marshalling repositories: %w", err)
		}
		fmt.Fprint(w, string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
