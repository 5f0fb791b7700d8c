package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	tiktok "github.com/RavensCloud/tiktok-profiles"
	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [username...]",
		Short: "Fetch many profiles with parallel workers",
		Long: `batch fetches every listed profile. Each worker has its own fingerprint
and session. A failed profile is reported and the run continues; the exit
status is non-zero if any profile failed.`,
		Example: `  tiktok batch alice bob carol
  tiktok batch --file users.txt --concurrency 3`,
		RunE: runBatch,
	}
	cmd.Flags().String("file", "", "read usernames from a file, one per line (# starts a comment)")
	cmd.Flags().Int("concurrency", 0, "number of workers (default from config)")
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}

	users := append([]string(nil), args...)
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open username file: %w", err)
		}
		fromFile, err := readUsernames(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("read username file: %w", err)
		}
		users = append(users, fromFile...)
	}
	if len(users) == 0 {
		return fmt.Errorf("no usernames given")
	}
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		rt.cfg.Concurrency = n
	}

	items, err := tiktok.RunBatch(cmd.Context(), rt.cfg, users, tiktok.WithLogger(rt.logger))
	if err != nil && items == nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rt.format == formatMarkdown {
		if werr := writeBatchMarkdown(out, items); werr != nil {
			return werr
		}
	} else if werr := writeJSON(out, items); werr != nil {
		return werr
	}

	if err != nil {
		return err
	}
	if sum := tiktok.Summarize(items); sum.Failed > 0 {
		return fmt.Errorf("%d of %d profiles failed", sum.Failed, sum.Total)
	}
	return nil
}

// readUsernames reads one username per line, skipping blanks and comments.
func readUsernames(r io.Reader) ([]string, error) {
	var users []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		users = append(users, line)
	}
	return users, sc.Err()
}
