package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mir/fiddle-test-cov/internal/config"
	"github.com/mir/fiddle-test-cov/internal/gitrepo"
)

// newGitRunner is swapped out in tests.
var newGitRunner = func() gitrepo.GitRunner { return &gitrepo.ExecGit{} }

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage the checked-out target repositories",
}

var reposCloneCmd = &cobra.Command{
	Use:   "clone",
	Short: "Clone every configured repository into the repos root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		repos, err := config.LoadRepos(s.ReposFile)
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No repositories configured in %s.\n", s.ReposFile)
			return nil
		}

		mgr := gitrepo.NewManager(newGitRunner(), s.ReposRoot)
		results, err := mgr.Clone(repos)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		failed := 0
		for _, r := range results {
			switch r.Action {
			case gitrepo.ActionFailed:
				failed++
				fmt.Fprintf(w, "  %-30s failed: %v\n", r.Name, r.Err)
			default:
				fmt.Fprintf(w, "  %-30s %-7s %s\n", r.Name, r.Action, r.Commit)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d clone(s) failed", failed, len(results))
		}
		return nil
	},
}

var reposResetCmd = &cobra.Command{
	Use:   "reset <name>...",
	Short: "Discard local changes in the named checkouts (destructive!)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		mgr := gitrepo.NewManager(newGitRunner(), s.ReposRoot)
		for _, name := range args {
			if err := mgr.Reset(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", mgr.Path(name))
		}
		return nil
	},
}

func init() {
	reposCmd.AddCommand(reposCloneCmd)
	reposCmd.AddCommand(reposResetCmd)
}
