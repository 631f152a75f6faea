package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillbooks/ledger-engine/config"
	"github.com/quillbooks/ledger-engine/ledger"
	"github.com/quillbooks/ledger-engine/store/sqlite"
)

// newMatchCommand runs the offset matcher for one account/currency pair,
// the operator-triggered reconciliation pass. Discovery and commit stay
// separate: without --apply nothing is written.
func newMatchCommand() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "match <account> <currency>",
		Short: "Propose (and optionally apply) offset matches for one account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}

			store, err := sqlite.New(cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			matcher := ledger.NewMatcher(store)
			result, err := matcher.Run(cmd.Context(), args[0], ledger.Currency(args[1]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, pair := range result.Pairs {
				fmt.Fprintf(out, "%s  %s  %s  ->  %s\n",
					pair.Original.EntryDate.Format("2006-01-02"),
					pair.Original.Description,
					pair.Original.Amount,
					pair.Offset.EntryDate.Format("2006-01-02"))
			}
			fmt.Fprintln(out, result.Summary)

			if !apply {
				return nil
			}
			applied, err := matcher.Apply(cmd.Context(), result)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "applied %d of %d proposed pairs\n", applied, len(result.Pairs))
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "persist the proposed offset links")
	return cmd
}
