package troop

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/100monkeys-ai/monkey-troop/pkg/audit"
	"github.com/100monkeys-ai/monkey-troop/pkg/ledger"
	"github.com/100monkeys-ai/monkey-troop/pkg/lib/ratelimit"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/endpoint/coordinator"
	"github.com/100monkeys-ai/monkey-troop/pkg/registry"
	"github.com/100monkeys-ai/monkey-troop/pkg/registry/inmemory"
	"github.com/100monkeys-ai/monkey-troop/pkg/system"
	"github.com/100monkeys-ai/monkey-troop/pkg/ticket"
)

var (
	serveHost       string
	servePort       int
	serveDataDir    string
	serveLedgerPath string
)

func init() { //nolint:gochecknoinits // Using init in cobra command is idiomatic
	serveCmd.PersistentFlags().StringVar(
		&serveHost, "host", "0.0.0.0",
		`The host to listen on.`,
	)
	serveCmd.PersistentFlags().IntVar(
		&servePort, "port", 1317,
		`The port to listen on for API connections.`,
	)
	serveCmd.PersistentFlags().StringVar(
		&serveDataDir, "data-dir", defaultDataDir(),
		`Directory holding the signing keys and the ledger database.`,
	)
	serveCmd.PersistentFlags().StringVar(
		&serveLedgerPath, "ledger-path", "",
		`Path to the sqlite ledger database. Defaults to ledger.db under the data dir.`,
	)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the troop coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		receiptSecret := viper.GetString("receipt_secret")
		if receiptSecret == "" {
			return fmt.Errorf("TROOP_RECEIPT_SECRET must be set; it is the HMAC key workers sign receipts with")
		}
		ledgerPath := serveLedgerPath
		if ledgerPath == "" {
			ledgerPath = serveDataDir + "/ledger.db"
		}

		// Cleanup manager ensures that resources are freed before exiting:
		cm := system.NewCleanupManager()
		defer cm.Cleanup()

		ctx := cmd.Context()

		signer, err := ticket.LoadOrGenerateSigner(serveDataDir)
		if err != nil {
			return err
		}

		creditLedger, err := ledger.NewSQLiteLedger(ledger.Params{
			Path:          ledgerPath,
			ReceiptSecret: []byte(receiptSecret),
		})
		if err != nil {
			return err
		}
		cm.RegisterCallback(creditLedger.Close)

		store := inmemory.NewLeaseStore(inmemory.LeaseStoreParams{
			TTL: models.DefaultLeaseTTL,
		})

		server := publicapi.NewServer(publicapi.Config{
			Host:                   serveHost,
			Port:                   servePort,
			ReadHeaderTimeout:      publicapi.DefaultConfig().ReadHeaderTimeout,
			ReadTimeout:            publicapi.DefaultConfig().ReadTimeout,
			WriteTimeout:           publicapi.DefaultConfig().WriteTimeout,
			ThrottleLimitPerSecond: publicapi.DefaultConfig().ThrottleLimitPerSecond,
		})

		_, err = coordinator.NewEndpoint(coordinator.EndpointParams{
			Router:    server.Router,
			Store:     store,
			Selector:  registry.NewSelector(store),
			Authority: ticket.NewAuthority(ticket.AuthorityParams{Signer: signer}),
			Signer:    signer,
			Ledger:    creditLedger,
			Limiter:   ratelimit.NewLimiter(nil),
			Sink:      audit.NewZerologSink(),
		})
		if err != nil {
			return err
		}

		sweeper := ledger.NewSweeper(ledger.SweeperParams{
			Ledger:   creditLedger,
			Interval: models.DefaultSweepInterval,
		})
		go sweeper.Start(ctx)

		return server.ListenAndServe(ctx, cm)
	},
}

func defaultDataDir() string {
	if dir := viper.GetString("data_dir"); dir != "" {
		return dir
	}
	return ".troop"
}
