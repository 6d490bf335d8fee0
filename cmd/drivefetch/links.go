package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type linkOutput struct {
	URL        string `json:"url"`
	Confidence string `json:"confidence"`
	Rule       string `json:"rule"`
}

func newLinksCmd(a *app) *cobra.Command {
	var (
		id     string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "links <file>",
		Short: "Run link extraction over a saved interstitial page",
		Long:  `Reads an HTML page saved from the upstream (- for stdin) and prints the download links the extraction patterns find, best first.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.load(cmd)
			if err != nil {
				return err
			}

			doc, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			links := eng.Extractor.Extract(id, doc)
			if asJSON {
				out := make([]linkOutput, 0, len(links))
				for _, l := range links {
					out = append(out, linkOutput{URL: l.URL, Confidence: l.Confidence.String(), Rule: l.Rule})
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			if len(links) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No links found.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CONFIDENCE\tRULE\tURL")
			for _, l := range links {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", l.Confidence, l.Rule, l.URL)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "file identifier the page was served for")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output links as JSON")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("page %s does not exist", path)
	}
	return data, err
}
