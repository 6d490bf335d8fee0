package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/iconidentify/drivestream/internal/domain"
)

func newGetCmd(a *app) *cobra.Command {
	var (
		output    string
		byteRange string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Resolve a file and write its bytes",
		Long: `Resolves the file and streams it to --output, or to stdout when stdout is
not a terminal. With --json only the resolution result is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.load(cmd)
			if err != nil {
				return err
			}

			mode := domain.ModeAuto
			if asJSON {
				mode = domain.ModeJSON
			}
			req, err := domain.NewResourceRequest(args[0], mode, byteRange)
			if err != nil {
				return err
			}

			src, err := eng.Resolver.Resolve(cmd.Context(), req)
			if err != nil {
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), eng.Composer.Compose(req, err).JSON)
				}
				reportFailure(cmd, err, eng.Generator.ViewerURL(req.ID))
				return err
			}
			if asJSON {
				src.Close()
				return writeJSON(cmd.OutOrStdout(), eng.Composer.Resolved(req, src).JSON)
			}

			resp := eng.Relay.Prepare(src, req.RangeHeader)
			defer resp.Body.Close()

			dst, finish, err := openOutput(cmd, output)
			if err != nil {
				return err
			}
			n, copyErr := io.Copy(dst, resp.Body)
			if err := finish(copyErr); err != nil {
				return err
			}

			cmd.PrintErrf("%d bytes, %s, status %d, via %s\n", n, resp.Header.Get("Content-Type"), resp.Status, src.Origin.Origin)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "file to write, - for stdout")
	cmd.Flags().StringVarP(&byteRange, "range", "r", "", `byte range to fetch, e.g. "bytes=0-1023"`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the resolution result as JSON instead of downloading")
	return cmd
}

// openOutput returns the destination and a function that finalizes it. A
// partially written file is removed when the copy failed.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func(error) error, error) {
	if path == "" || path == "-" {
		out := cmd.OutOrStdout()
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return nil, nil, errors.New("refusing to write binary data to a terminal, use --output")
		}
		return out, func(err error) error { return err }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, func(copyErr error) error {
		closeErr := f.Close()
		if copyErr == nil {
			copyErr = closeErr
		}
		if copyErr != nil {
			os.Remove(path)
			return fmt.Errorf("write %s: %w", path, copyErr)
		}
		return nil
	}, nil
}

func reportFailure(cmd *cobra.Command, err error, viewer string) {
	var failure *domain.ResolutionFailure
	if !errors.As(err, &failure) {
		return
	}
	cmd.PrintErrf("resolution %s failed (%s), tried:\n", failure.ResolutionID, failure.Reason)
	for i, c := range failure.Tried {
		cmd.PrintErrf("  %d. [%s/%s] %s\n", i+1, c.Origin, c.Profile.Name, c.URL)
	}
	cmd.PrintErrf("open it in a browser instead: %s\n", viewer)
}
