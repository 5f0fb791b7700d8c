package main

import (
	tiktok "github.com/RavensCloud/tiktok-profiles"
	"github.com/spf13/cobra"
)

func newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <username>",
		Short: "Fetch one profile",
		Example: `  tiktok profile charlidamelio
  tiktok profile @charlidamelio --format markdown
  tiktok profile https://www.tiktok.com/@charlidamelio --render`,
		Args: cobra.ExactArgs(1),
		RunE: runProfile,
	}
}

func runProfile(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}

	s, err := tiktok.New(rt.cfg, tiktok.WithLogger(rt.logger))
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.GetProfileWithRetry(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rt.format == formatMarkdown {
		return writeProfileMarkdown(out, res)
	}
	return writeJSON(out, res)
}
