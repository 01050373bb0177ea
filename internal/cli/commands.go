package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"balanceview/internal/amqp"
	"balanceview/internal/config"
	"balanceview/internal/core"
	"balanceview/internal/ledger"
	"balanceview/internal/log"
	"balanceview/internal/migration"
	"balanceview/internal/storage"
)

// app is the state shared by the admin commands of one invocation.
type app struct {
	dbPath    string
	logLevel  string
	retention string

	cfg    *config.Config
	logger *log.Logger
	repo   *storage.SQLiteRepository

	// Set from the broker when AMQP is configured, unless given as options.
	notifier  ledger.Notifier
	scheduler migration.PurgeScheduler
	broker    *amqp.Client
}

// Option customizes the command tree.
type Option func(*app)

// WithNotifier forwards change events of CLI migrations to n instead of the broker.
func WithNotifier(n ledger.Notifier) Option { return func(a *app) { a.notifier = n } }

// WithPurgeScheduler defers purge retention to sched instead of the broker.
func WithPurgeScheduler(sched migration.PurgeScheduler) Option {
	return func(a *app) { a.scheduler = sched }
}

// NewRootCommand builds the balancectl command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:           "balancectl",
		Short:         "Administer balanceview ledgers",
		Long:          "Inspect monthly ledgers and run or repair legacy data migrations.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (default from config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level for diagnostics on stderr")

	migrate := &cobra.Command{
		Use:   "migrate <user>",
		Short: "Fold a user's legacy data into the current month",
		Args:  cobra.ExactArgs(1),
		RunE:  a.closeOnError(a.runMigrate),
	}
	migrate.Flags().StringVar(&a.retention, "retention", "", "retain or purge (default from config)")

	root.AddCommand(
		&cobra.Command{
			Use:   "months <user> [limit]",
			Short: "List a user's months, most recent first",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  a.closeOnError(a.runMonths),
		},
		&cobra.Command{
			Use:   "detect <user>",
			Short: "Report whether a user still has legacy data",
			Args:  cobra.ExactArgs(1),
			RunE:  a.closeOnError(a.runDetect),
		},
		migrate,
		&cobra.Command{
			Use:   "purge-legacy <user>",
			Short: "Delete the legacy data of an already migrated user",
			Args:  cobra.ExactArgs(1),
			RunE:  a.closeOnError(a.runPurge),
		},
		&cobra.Command{
			Use:   "import-legacy <user> <file.json>",
			Short: "Seed a user's legacy data from a JSON export",
			Args:  cobra.ExactArgs(2),
			RunE:  a.closeOnError(a.runImport),
		},
	)
	return root
}

// Execute runs balancectl with the process arguments.
func Execute() {
	LoadEnvFile()
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), badStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.SQLiteDBPath = a.dbPath
	}
	if err := cfg.Validate(false); err != nil {
		return err
	}
	a.cfg = cfg

	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(a.logLevel)
	lc.Output = cmd.ErrOrStderr()
	a.logger = log.New(lc)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.repo = repo

	if cfg.AMQPEnabled() && (a.notifier == nil || a.scheduler == nil) {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			a.close()
			return fmt.Errorf("connect to broker: %w", err)
		}
		a.broker = client
		if a.notifier == nil {
			a.notifier = client
		}
		if a.scheduler == nil {
			a.scheduler = client
		}
	}
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.broker != nil {
		errs = append(errs, a.broker.Close())
		a.broker = nil
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
		a.repo = nil
	}
	return errors.Join(errs...)
}

// closeOnError releases resources when fn fails; PersistentPostRunE only
// runs after a successful command.
func (a *app) closeOnError(fn func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err != nil {
			a.close()
		}
		return err
	}
}

// service builds a migration service whose commits are announced like the
// server's: through a ledger forwarding to the notifier, with purges
// handed to the scheduler when one is set.
func (a *app) service(opts ...migration.Option) *migration.Service {
	ledgerOpts := []ledger.Option{ledger.WithLogger(a.logger.WithComponent(log.ComponentLedger))}
	if a.notifier != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithNotifier(a.notifier))
	}
	base := []migration.Option{
		migration.WithLogger(a.logger.WithComponent(log.ComponentMigration)),
		migration.WithAnnouncer(ledger.New(a.repo, ledgerOpts...)),
	}
	if a.scheduler != nil {
		base = append(base, migration.WithPurgeScheduler(a.scheduler))
	}
	return migration.NewService(a.repo, append(base, opts...)...)
}

func (a *app) runMonths(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	userID := args[0]
	limit := 0
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid limit %q", args[1])
		}
		limit = n
	}

	l := ledger.New(a.repo, ledger.WithLogger(a.logger.WithComponent(log.ComponentLedger)))
	months, err := l.ListMonths(ctx, userID, limit)
	if err != nil {
		return err
	}
	profile, err := a.repo.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	return renderMonths(cmd.OutOrStdout(), userID, months, profile.Currency)
}

func renderMonths(w io.Writer, userID string, months []core.MonthSummary, currency string) error {
	fmt.Fprintln(w, RenderTitle("Months of "+userID))
	if len(months) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no months recorded"))
		return nil
	}

	t := Table{Headers: []string{"Month", "Income", "Bills", "Total bills", "Balance"}}
	for _, m := range months {
		balance := core.FormatCurrency(m.Balance, currency)
		if m.Balance.IsNegative() {
			balance = badStyle.Render(balance)
		}
		t.Rows = append(t.Rows, []string{
			m.Month.String(),
			core.FormatCurrency(m.Income, currency),
			strconv.Itoa(m.BillCount),
			core.FormatCurrency(m.TotalBills, currency),
			balance,
		})
	}
	_, err := fmt.Fprint(w, RenderTable(t))
	return err
}

func (a *app) runDetect(cmd *cobra.Command, args []string) error {
	state, err := a.service().NewSession(args[0]).Detect(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	style := okStyle
	if state.HasLegacyData() {
		style = warnStyle
	}
	fmt.Fprint(out, RenderKV(
		[2]string{"user", args[0]},
		[2]string{"state", style.Render(state.String())},
	))
	return nil
}

func (a *app) runMigrate(cmd *cobra.Command, args []string) error {
	policy := a.cfg.RetentionPolicy
	if a.retention != "" {
		policy = a.retention
	}
	retention, err := migration.ParseRetention(policy)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	sess := a.service(migration.WithRetention(retention)).NewSession(args[0])
	state, err := sess.Detect(ctx)
	if err != nil {
		return err
	}
	if !state.HasLegacyData() {
		fmt.Fprint(cmd.OutOrStdout(), RenderKV(
			[2]string{"user", args[0]},
			[2]string{"state", okStyle.Render(state.String())},
		))
		return nil
	}

	res, err := sess.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", args[0], err)
	}
	fmt.Fprint(cmd.OutOrStdout(), RenderKV(
		[2]string{"user", args[0]},
		[2]string{"state", okStyle.Render(sess.State().String())},
		[2]string{"month", res.Month.String()},
		[2]string{"bills", strconv.Itoa(res.BillCount)},
		[2]string{"income merged", strconv.FormatBool(res.IncomeMerged)},
		[2]string{"retention", string(res.Retention)},
		[2]string{"purged", strconv.FormatBool(res.Purged)},
		[2]string{"purge scheduled", strconv.FormatBool(res.PurgeScheduled)},
	))
	return nil
}

func (a *app) runPurge(cmd *cobra.Command, args []string) error {
	n, err := a.service().Purge(cmd.Context(), args[0])
	if errors.Is(err, migration.ErrNotMigrated) {
		return fmt.Errorf("%s has not been migrated; refusing to purge", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), RenderKV(
		[2]string{"user", args[0]},
		[2]string{"bills removed", strconv.FormatInt(n, 10)},
	))
	return nil
}

// legacyFile is the JSON shape exported by the pre-monthly application.
type legacyFile struct {
	MonthlyIncome decimal.Decimal `json:"monthlyIncome"`
	Bills         []struct {
		Name           string          `json:"name"`
		Amount         decimal.Decimal `json:"amount"`
		PaymentDate    int             `json:"paymentDate"`
		Recurring      bool            `json:"recurring"`
		PaymentAccount string          `json:"paymentAccount"`
	} `json:"bills"`
}

func readLegacyFile(path, userID string) (core.LegacyUserRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.LegacyUserRecord{}, fmt.Errorf("read %s: %w", path, err)
	}
	var f legacyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return core.LegacyUserRecord{}, fmt.Errorf("parse %s: %w", path, err)
	}

	rec := core.LegacyUserRecord{UserID: userID, MonthlyIncome: f.MonthlyIncome}
	for i, b := range f.Bills {
		if b.Name == "" {
			return core.LegacyUserRecord{}, fmt.Errorf("bill %d: %w", i, core.ErrEmptyName)
		}
		rec.Bills = append(rec.Bills, core.Bill{
			Name:           b.Name,
			Amount:         b.Amount,
			PaymentDate:    b.PaymentDate,
			Recurring:      b.Recurring,
			PaymentAccount: b.PaymentAccount,
		})
	}
	return rec, nil
}

func (a *app) runImport(cmd *cobra.Command, args []string) error {
	rec, err := readLegacyFile(args[1], args[0])
	if err != nil {
		return err
	}
	if err := a.repo.SaveLegacyRecord(cmd.Context(), rec); err != nil {
		return err
	}
	a.logger.InfoContext(cmd.Context(), "Legacy data imported", log.FieldUserID, args[0], log.FieldBillCount, len(rec.Bills))
	fmt.Fprint(cmd.OutOrStdout(), RenderKV(
		[2]string{"user", args[0]},
		[2]string{"income", rec.MonthlyIncome.StringFixed(2)},
		[2]string{"bills imported", strconv.Itoa(len(rec.Bills))},
	))
	return nil
}
