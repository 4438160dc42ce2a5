package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/biofetch/pkg/client"
)

func (a *app) newDownloadCmd() *cobra.Command {
	var (
		params []string
		dest   string
	)

	cmd := &cobra.Command{
		Use:   "download <path-or-url>",
		Short: "Stream a file through the download window",
		Long: `Stream a file through the download window (5 starts per 10 seconds by
default). Repeated downloads of the same file print an advisory; with
--redis-addr the counts survive across invocations.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			query, err := parseParams(params)
			if err != nil {
				return err
			}
			req := s.request(args[0], query)
			req.Format = client.FormatBinary

			if dest == "-" {
				result, err := s.client.Download(cmd.Context(), req, a.out)
				if err != nil {
					return err
				}
				return renderDownload(a.errOut, dest, result)
			}

			f, err := createFile(dest)
			if err != nil {
				return err
			}
			result, err := s.client.Download(cmd.Context(), req, f)
			if closeErr := f.Close(); err == nil && closeErr != nil {
				err = fmt.Errorf("close %s: %w", dest, closeErr)
			}
			if err != nil {
				os.Remove(dest)
				return err
			}

			return renderDownload(a.out, dest, result)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter key=value (repeatable)")
	cmd.Flags().StringVarP(&dest, "dest", "d", "-", "destination file (- for stdout)")
	return cmd
}

// createFile opens a download destination.
var createFile = func(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0 (got %s)", s)
	}
	return d, nil
}
