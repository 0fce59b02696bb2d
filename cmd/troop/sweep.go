package troop

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/100monkeys-ai/monkey-troop/pkg/ledger"
)

var sweepLedgerPath string

func init() { //nolint:gochecknoinits // Using init in cobra command is idiomatic
	sweepCmd.PersistentFlags().StringVar(
		&sweepLedgerPath, "ledger-path", ".troop/ledger.db",
		`Path to the sqlite ledger database.`,
	)
}

// sweepCmd is an operator escape hatch: a one-shot expiry sweep against a
// ledger whose coordinator is not running.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Refund expired reservations in the credit ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		receiptSecret := viper.GetString("receipt_secret")
		if receiptSecret == "" {
			return fmt.Errorf("TROOP_RECEIPT_SECRET must be set")
		}

		creditLedger, err := ledger.NewSQLiteLedger(ledger.Params{
			Path:          sweepLedgerPath,
			ReceiptSecret: []byte(receiptSecret),
		})
		if err != nil {
			return err
		}
		defer func() { _ = creditLedger.Close() }()

		swept, err := creditLedger.SweepExpired(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("swept %d expired reservations\n", swept)
		return nil
	},
}
