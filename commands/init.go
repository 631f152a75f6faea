package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillbooks/ledger-engine/config"
	"github.com/quillbooks/ledger-engine/ledger"
	"github.com/quillbooks/ledger-engine/store/sqlite"
)

// defaultAccounts is the starter chart of accounts. Receivables and
// payables are the needs-offset pair the matcher operates on.
var defaultAccounts = []ledger.Account{
	{Code: "1111", Title: "Cash", Base: ledger.BaseAsset},
	{Code: "1141", Title: "Accounts receivable", Base: ledger.BaseAsset, NeedsOffset: true},
	{Code: "2141", Title: "Accounts payable", Base: ledger.BaseLiability, NeedsOffset: true},
	{Code: "3111", Title: "Owner's equity", Base: ledger.BaseEquity},
	{Code: "4111", Title: "Sales", Base: ledger.BaseIncome},
	{Code: "6111", Title: "General expenses", Base: ledger.BaseExpense},
}

// newInitCommand writes a starter configuration, creates the database
// schema and seeds the default chart of accounts.
func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a starter config, schema and chart of accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)
			cfg := config.Default()
			if err := cfg.Write(path); err != nil {
				return err
			}

			store, err := sqlite.New(cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, a := range defaultAccounts {
				if err := store.SaveAccount(cmd.Context(), a); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s and %s with %d accounts\n",
				path, cfg.Database, len(defaultAccounts))
			return nil
		},
	}
}
