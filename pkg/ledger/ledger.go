package ledger

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sync "github.com/bacalhau-project/golang-mutex-tracer"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/telemetry"
)

const starterGrantJobID = "starter_grant"

type Params struct {
	// Path is the sqlite database file to open.
	Path string

	// ReceiptSecret is the HMAC key shared with workers for signing job
	// receipts. Required.
	ReceiptSecret []byte

	// ReservationTTL bounds how long a hold stays open before the expiry
	// sweep refunds it.
	ReservationTTL time.Duration

	// StarterGrant is the one-time credit for fresh accounts, in seconds.
	StarterGrant int64

	Clock clock.Clock
}

// Ledger is the credit accounting core: an append-only entry log backed by
// sqlite with the account balance maintained transactionally alongside it.
// Balance changes happen in single transactions so a crash can never leave
// the cached balance out of step with the entries.
type Ledger struct {
	mtx              sync.RWMutex
	db               *sql.DB
	connectionString string
	clock            clock.Clock
	receiptSecret    []byte
	reservationTTL   time.Duration
	starterGrant     int64
}

func NewSQLiteLedger(params Params) (*Ledger, error) {
	if len(params.ReceiptSecret) == 0 {
		return nil, errors.New("ledger requires a receipt secret")
	}
	if params.ReservationTTL == 0 {
		params.ReservationTTL = models.DefaultReservationTTL
	}
	if params.StarterGrant == 0 {
		params.StarterGrant = models.StarterGrantSeconds
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}

	db, err := openDatabase(params.Path)
	if err != nil {
		return nil, err
	}

	ledger := &Ledger{
		db:               db,
		connectionString: "sqlite://" + params.Path,
		clock:            params.Clock,
		receiptSecret:    params.ReceiptSecret,
		reservationTTL:   params.ReservationTTL,
		starterGrant:     params.StarterGrant,
	}
	ledger.mtx.EnableTracerWithOpts(sync.Opts{
		Threshold: 10 * time.Millisecond,
		Id:        "Ledger.mtx",
	})

	if err := ledger.MigrateUp(); err != nil {
		return nil, errors.Wrap(err, "migrating ledger schema")
	}
	return ledger, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// EnsureAccount creates the account with a one-time starter grant if it is
// absent, and is a no-op otherwise. Safe under concurrent first-touch:
// the insert and the grant entry commit in one transaction keyed by the
// identity, so exactly one grant is ever applied per identity.
func (l *Ledger) EnsureAccount(ctx context.Context, identity string) (models.Account, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if identity == "" {
		return models.Account{}, models.NewBaseError("account identity must not be empty").
			WithCode(models.BadRequestError).
			WithComponent("Ledger")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Account{}, l.datastoreErr(err, "beginning transaction")
	}
	//nolint:errcheck
	defer tx.Rollback()

	now := l.clock.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (public_key, balance, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (public_key) DO NOTHING`,
		identity, l.starterGrant, now.UnixNano())
	if err != nil {
		return models.Account{}, l.datastoreErr(err, "creating account")
	}

	created, err := res.RowsAffected()
	if err != nil {
		return models.Account{}, l.datastoreErr(err, "checking account insert")
	}
	if created == 1 {
		err = insertEntry(tx, ctx, models.LedgerEntry{
			Account:   identity,
			Amount:    l.starterGrant,
			Kind:      models.EntryKindGrant,
			JobID:     starterGrantJobID,
			CreatedAt: now,
		})
		if err != nil {
			return models.Account{}, err
		}
		log.Ctx(ctx).Info().
			Str("account", identity).
			Int64("grant", l.starterGrant).
			Msg("created account with starter grant")
	}

	account, err := getAccount(tx, ctx, identity)
	if err != nil {
		return models.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Account{}, l.datastoreErr(err, "committing account")
	}
	return account, nil
}

// Reserve atomically checks the balance covers amount and, if so,
// decrements it and opens a reservation for the job, all in one
// transaction. This single indivisible step is what prevents two
// concurrent authorization requests from both succeeding against an
// almost-exhausted balance.
func (l *Ledger) Reserve(
	ctx context.Context,
	identity string,
	amount int64,
	jobID string,
	nodeID string,
	multiplier float64,
) (models.Reservation, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if amount <= 0 {
		return models.Reservation{}, models.NewBaseError("reservation amount must be positive, got %d", amount).
			WithCode(models.BadRequestError).
			WithComponent("Ledger")
	}
	if multiplier < 1.0 {
		multiplier = 1.0
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Reservation{}, l.datastoreErr(err, "beginning transaction")
	}
	//nolint:errcheck
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance - $1
		WHERE public_key = $2 AND balance >= $1`,
		amount, identity)
	if err != nil {
		return models.Reservation{}, l.datastoreErr(err, "holding balance")
	}
	held, err := res.RowsAffected()
	if err != nil {
		return models.Reservation{}, l.datastoreErr(err, "checking balance hold")
	}
	if held == 0 {
		balance, balanceErr := getBalance(tx, ctx, identity)
		if balanceErr != nil {
			return models.Reservation{}, balanceErr
		}
		return models.Reservation{}, NewErrInsufficientCredit(identity, amount, balance)
	}

	now := l.clock.Now()
	reservation := models.Reservation{
		JobID:      jobID,
		Account:    identity,
		NodeID:     nodeID,
		HeldAmount: amount,
		Multiplier: multiplier,
		ExpiresAt:  now.Add(l.reservationTTL),
		CreatedAt:  now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (job_id, account, node_id, held_amount, multiplier, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reservation.JobID, reservation.Account, reservation.NodeID, reservation.HeldAmount,
		reservation.Multiplier, reservation.ExpiresAt.UnixNano(), reservation.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueConstraintErr(err) {
			return models.Reservation{}, models.NewBaseError("reservation already open for job %s", jobID).
				WithCode(models.BadRequestError).
				WithComponent("Ledger")
		}
		return models.Reservation{}, l.datastoreErr(err, "creating reservation")
	}

	err = insertEntry(tx, ctx, models.LedgerEntry{
		Account:      identity,
		Counterparty: nodeID,
		Amount:       amount,
		Kind:         models.EntryKindReservation,
		JobID:        jobID,
		CreatedAt:    now,
	})
	if err != nil {
		return models.Reservation{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Reservation{}, l.datastoreErr(err, "committing reservation")
	}

	log.Ctx(ctx).Debug().
		Str("account", identity).
		Str("job_id", jobID).
		Int64("held", amount).
		Msg("reserved credit")
	return reservation, nil
}

// Settlement is the outcome of converting a reservation into a final charge.
type Settlement struct {
	JobID     string `json:"JobID"`
	Account   string `json:"Account"`
	NodeID    string `json:"NodeID"`
	FinalCost int64  `json:"FinalCost"`
	Refunded  int64  `json:"Refunded"`
}

// Settle verifies the worker's receipt signature and converts the open
// reservation into a settlement entry, refunding any unused portion of the
// hold. The final cost is duration times the node's hardware multiplier,
// capped at the originally held amount: the system never charges more than
// was reserved. A bad signature leaves the reservation untouched so it can
// be retried or left to expire; a settled job has no reservation left, so
// a second settle fails rather than charging twice.
func (l *Ledger) Settle(
	ctx context.Context,
	jobID string,
	nodeID string,
	durationSeconds int64,
	receiptSignature string,
) (Settlement, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if durationSeconds < 0 {
		return Settlement{}, models.NewBaseError("duration must not be negative, got %d", durationSeconds).
			WithCode(models.BadRequestError).
			WithComponent("Ledger")
	}
	if !VerifyReceipt(l.receiptSecret, jobID, nodeID, durationSeconds, receiptSignature) {
		return Settlement{}, NewErrReceiptSignatureInvalid(jobID, nodeID)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Settlement{}, l.datastoreErr(err, "beginning transaction")
	}
	//nolint:errcheck
	defer tx.Rollback()

	reservation, err := getReservation(tx, ctx, jobID)
	if err != nil {
		return Settlement{}, err
	}
	if reservation.NodeID != nodeID {
		return Settlement{}, NewErrReceiptSignatureInvalid(jobID, nodeID)
	}

	finalCost := int64(float64(durationSeconds) * reservation.Multiplier)
	if finalCost > reservation.HeldAmount {
		finalCost = reservation.HeldAmount
	}
	refund := reservation.HeldAmount - finalCost

	now := l.clock.Now()
	if refund > 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE accounts SET balance = balance + $1 WHERE public_key = $2`,
			refund, reservation.Account)
		if err != nil {
			return Settlement{}, l.datastoreErr(err, "refunding unused hold")
		}
	}

	err = insertEntry(tx, ctx, models.LedgerEntry{
		Account:      reservation.Account,
		Counterparty: nodeID,
		Amount:       finalCost,
		Kind:         models.EntryKindSettlement,
		JobID:        jobID,
		CreatedAt:    now,
	})
	if err != nil {
		return Settlement{}, err
	}
	if refund > 0 {
		err = insertEntry(tx, ctx, models.LedgerEntry{
			Account:      reservation.Account,
			Counterparty: nodeID,
			Amount:       refund,
			Kind:         models.EntryKindRefund,
			JobID:        jobID,
			CreatedAt:    now,
		})
		if err != nil {
			return Settlement{}, err
		}
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM reservations WHERE job_id = $1`, jobID)
	if err != nil {
		return Settlement{}, l.datastoreErr(err, "closing reservation")
	}
	if err := tx.Commit(); err != nil {
		return Settlement{}, l.datastoreErr(err, "committing settlement")
	}

	log.Ctx(ctx).Info().
		Str("account", reservation.Account).
		Str("job_id", jobID).
		Str("node_id", nodeID).
		Int64("final_cost", finalCost).
		Int64("refunded", refund).
		Msg("settled job")
	return Settlement{
		JobID:     jobID,
		Account:   reservation.Account,
		NodeID:    nodeID,
		FinalCost: finalCost,
		Refunded:  refund,
	}, nil
}

// SweepExpired refunds every reservation past its expiry in full and
// removes it, bounding the lifetime of held-but-unsettled funds to the
// reservation TTL. Each reservation is resolved in its own transaction so
// one bad row cannot block the rest of the sweep. Returns the number of
// reservations swept.
func (l *Ledger) SweepExpired(ctx context.Context) (int, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	now := l.clock.Now()
	rows, err := l.db.QueryContext(ctx,
		`SELECT job_id FROM reservations WHERE expires_at <= $1`, now.UnixNano())
	if err != nil {
		return 0, l.datastoreErr(err, "listing expired reservations")
	}
	var expired []string
	for rows.Next() {
		var jobID string
		if err := rows.Scan(&jobID); err != nil {
			rows.Close()
			return 0, l.datastoreErr(err, "scanning expired reservation")
		}
		expired = append(expired, jobID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, l.datastoreErr(err, "listing expired reservations")
	}
	rows.Close()

	var swept int
	var result *multierror.Error
	for _, jobID := range expired {
		if err := l.refundExpired(ctx, jobID, now); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		swept++
	}
	if swept > 0 {
		telemetry.ReservationsSwept.Add(float64(swept))
		log.Ctx(ctx).Info().Int("count", swept).Msg("swept expired reservations")
	}
	return swept, result.ErrorOrNil()
}

func (l *Ledger) refundExpired(ctx context.Context, jobID string, now time.Time) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return l.datastoreErr(err, "beginning transaction")
	}
	//nolint:errcheck
	defer tx.Rollback()

	reservation, err := getReservation(tx, ctx, jobID)
	if err != nil {
		// settled between listing and refunding
		if models.IsErrorWithCode(err, models.NotFoundError) {
			return nil
		}
		return err
	}
	if !reservation.Expired(now) {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE public_key = $2`,
		reservation.HeldAmount, reservation.Account)
	if err != nil {
		return l.datastoreErr(err, "refunding expired hold")
	}
	err = insertEntry(tx, ctx, models.LedgerEntry{
		Account:      reservation.Account,
		Counterparty: reservation.NodeID,
		Amount:       reservation.HeldAmount,
		Kind:         models.EntryKindRefund,
		JobID:        jobID,
		CreatedAt:    now,
	})
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM reservations WHERE job_id = $1`, jobID)
	if err != nil {
		return l.datastoreErr(err, "removing expired reservation")
	}
	return tx.Commit()
}

// Balance returns the spendable balance for the identity, or zero for an
// account that does not exist yet.
func (l *Ledger) Balance(ctx context.Context, identity string) (int64, error) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	balance, err := getBalance(l.db, ctx, identity)
	if models.IsErrorWithCode(err, models.NotFoundError) {
		return 0, nil
	}
	return balance, err
}

// History returns the most recent ledger entries for the identity, newest
// first.
func (l *Ledger) History(ctx context.Context, identity string, limit int) ([]models.LedgerEntry, error) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT entry_id, account, COALESCE(counterparty, ''), amount, kind, COALESCE(job_id, ''), created_at
		FROM ledger_entries
		WHERE account = $1
		ORDER BY created_at DESC, entry_id DESC
		LIMIT $2`,
		identity, limit)
	if err != nil {
		return nil, l.datastoreErr(err, "listing ledger entries")
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var kind string
		var createdAt int64
		err := rows.Scan(&entry.EntryID, &entry.Account, &entry.Counterparty,
			&entry.Amount, &kind, &entry.JobID, &createdAt)
		if err != nil {
			return nil, l.datastoreErr(err, "scanning ledger entry")
		}
		entry.Kind, err = models.ParseEntryKind(kind)
		if err != nil {
			return nil, l.datastoreErr(err, "parsing ledger entry")
		}
		entry.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetReservation returns the open reservation for the job, if any.
func (l *Ledger) GetReservation(ctx context.Context, jobID string) (models.Reservation, error) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return getReservation(l.db, ctx, jobID)
}

// ProjectedBalance recomputes the balance from the entry log alone: grants
// and refunds credit, settlements debit, and a reservation entry debits
// only while its hold is still open. The cached accounts.balance column
// must always equal this projection; tests lean on it to catch drift.
func (l *Ledger) ProjectedBalance(ctx context.Context, identity string) (int64, error) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	row := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
			CASE kind
				WHEN 'grant' THEN amount
				WHEN 'refund' THEN amount
				WHEN 'settlement' THEN -amount
				WHEN 'reservation' THEN
					CASE WHEN EXISTS (
						SELECT 1 FROM reservations r WHERE r.job_id = ledger_entries.job_id
					) THEN -amount ELSE 0 END
			END), 0)
		FROM ledger_entries WHERE account = $1`,
		identity)
	var balance int64
	if err := row.Scan(&balance); err != nil {
		return 0, l.datastoreErr(err, "projecting balance")
	}
	return balance, nil
}

func getAccount(db SQLClient, ctx context.Context, identity string) (models.Account, error) {
	row := db.QueryRowContext(ctx,
		`SELECT public_key, balance, created_at FROM accounts WHERE public_key = $1`, identity)
	var account models.Account
	var createdAt int64
	if err := row.Scan(&account.PublicKey, &account.Balance, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return models.Account{}, NewErrAccountNotFound(identity)
		}
		return models.Account{}, errors.Wrap(err, "reading account")
	}
	account.CreatedAt = time.Unix(0, createdAt)
	return account, nil
}

func getBalance(db SQLClient, ctx context.Context, identity string) (int64, error) {
	row := db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE public_key = $1`, identity)
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if err == sql.ErrNoRows {
			return 0, NewErrAccountNotFound(identity)
		}
		return 0, errors.Wrap(err, "reading balance")
	}
	return balance, nil
}

func getReservation(db SQLClient, ctx context.Context, jobID string) (models.Reservation, error) {
	row := db.QueryRowContext(ctx, `
		SELECT job_id, account, node_id, held_amount, multiplier, expires_at, created_at
		FROM reservations WHERE job_id = $1`, jobID)
	var reservation models.Reservation
	var expiresAt, createdAt int64
	err := row.Scan(&reservation.JobID, &reservation.Account, &reservation.NodeID,
		&reservation.HeldAmount, &reservation.Multiplier, &expiresAt, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Reservation{}, NewErrReservationNotFound(jobID)
		}
		return models.Reservation{}, errors.Wrap(err, "reading reservation")
	}
	reservation.ExpiresAt = time.Unix(0, expiresAt)
	reservation.CreatedAt = time.Unix(0, createdAt)
	return reservation, nil
}

func insertEntry(db SQLClient, ctx context.Context, entry models.LedgerEntry) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	var counterparty any
	if entry.Counterparty != "" {
		counterparty = entry.Counterparty
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO ledger_entries (entry_id, account, counterparty, amount, kind, job_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.EntryID, entry.Account, counterparty, entry.Amount, string(entry.Kind),
		entry.JobID, entry.CreatedAt.UnixNano())
	if err != nil {
		return models.NewBaseError("writing ledger entry: %s", err).
			WithCode(models.DatastoreFailure).
			WithComponent("Ledger")
	}
	return nil
}

func (l *Ledger) datastoreErr(err error, action string) *models.BaseError {
	return models.NewBaseError("%s: %s", action, err).
		WithCode(models.DatastoreFailure).
		WithComponent("Ledger")
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
