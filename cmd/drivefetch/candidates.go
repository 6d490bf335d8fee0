package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type candidateOutput struct {
	URL     string `json:"url"`
	Origin  string `json:"origin"`
	Profile string `json:"profile"`
}

func newCandidatesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "candidates <id>",
		Short: "List the URLs tried for an identifier, in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.load(cmd)
			if err != nil {
				return err
			}

			cands := eng.Resolver.Candidates(args[0])
			if asJSON {
				out := make([]candidateOutput, 0, len(cands))
				for _, c := range cands {
					out = append(out, candidateOutput{URL: c.URL, Origin: string(c.Origin), Profile: c.Profile.Name})
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tORIGIN\tPROFILE\tURL")
			for i, c := range cands {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, c.Origin, c.Profile.Name, c.URL)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output candidates as JSON")
	return cmd
}
