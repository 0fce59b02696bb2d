//go:build unit || !integration

package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/100monkeys-ai/monkey-troop/pkg/logger"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/telemetry"
)

var testSecret = []byte("test-receipt-secret")

type LedgerSuite struct {
	suite.Suite
	ctx    context.Context
	clock  *clock.Mock
	ledger *Ledger
}

func (s *LedgerSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.ctx = context.Background()
	s.clock = clock.NewMock()
	s.clock.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	ledger, err := NewSQLiteLedger(Params{
		Path:           filepath.Join(s.T().TempDir(), "ledger.db"),
		ReceiptSecret:  testSecret,
		ReservationTTL: 15 * time.Minute,
		Clock:          s.clock,
	})
	s.Require().NoError(err)
	s.ledger = ledger
	s.T().Cleanup(func() { _ = ledger.Close() })
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) signReceipt(jobID, nodeID string, duration int64) string {
	return ReceiptSignature(testSecret, jobID, nodeID, duration)
}

func (s *LedgerSuite) balance(identity string) int64 {
	balance, err := s.ledger.Balance(s.ctx, identity)
	s.Require().NoError(err)
	return balance
}

func (s *LedgerSuite) requireConsistent(identity string) {
	projected, err := s.ledger.ProjectedBalance(s.ctx, identity)
	s.Require().NoError(err)
	s.Require().Equal(s.balance(identity), projected,
		"cached balance must equal the balance projected from the entry log")
}

func (s *LedgerSuite) TestStarterGrantAppliedOnce() {
	account, err := s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Equal(int64(models.StarterGrantSeconds), account.Balance)

	// a second ensure is a no-op, not a second grant
	account, err = s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Equal(int64(models.StarterGrantSeconds), account.Balance)

	history, err := s.ledger.History(s.ctx, "alice", 10)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Require().Equal(models.EntryKindGrant, history[0].Kind)
	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestUnknownAccountHasZeroBalance() {
	s.Require().Equal(int64(0), s.balance("nobody"))
}

func (s *LedgerSuite) TestReserveHoldsCredit() {
	_, err := s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)

	reservation, err := s.ledger.Reserve(s.ctx, "alice", 300, "job-1", "node-1", 2.0)
	s.Require().NoError(err)
	s.Require().Equal(int64(300), reservation.HeldAmount)
	s.Require().Equal(2.0, reservation.Multiplier)
	s.Require().Equal(s.clock.Now().Add(15*time.Minute), reservation.ExpiresAt)

	s.Require().Equal(int64(3300), s.balance("alice"))
	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestReserveInsufficientCredit() {
	_, err := s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)

	_, err = s.ledger.Reserve(s.ctx, "alice", models.StarterGrantSeconds+1, "job-1", "node-1", 1.0)
	s.Require().True(models.IsErrorWithCode(err, models.InsufficientCredit))

	s.Require().Equal(int64(models.StarterGrantSeconds), s.balance("alice"),
		"a failed reservation must not change the balance")
	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestConcurrentReservesNeverDoubleSpend() {
	_, err := s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)

	// two concurrent holds of 2000 against a balance of 3600: exactly one
	// can win
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jobID := []string{"job-a", "job-b"}[i]
			_, errs[i] = s.ledger.Reserve(s.ctx, "alice", 2000, jobID, "node-1", 1.0)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.Require().True(models.IsErrorWithCode(err, models.InsufficientCredit))
		}
	}
	s.Require().Equal(1, succeeded)
	s.Require().Equal(int64(1600), s.balance("alice"))
	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestSettleChargesActualCost() {
	_, err := s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)
	_, err = s.ledger.Reserve(s.ctx, "alice", 600, "job-1", "node-1", 2.0)
	s.Require().NoError(err)

	settlement, err := s.ledger.Settle(s.ctx, "job-1", "node-1", 100,
		s.signReceipt("job-1", "node-1", 100))
	s.Require().NoError(err)
	s.Require().Equal(int64(200), settlement.FinalCost, "100s at multiplier 2.0")
	s.Require().Equal(int64(400), settlement.Refunded)

	s.Require().Equal(int64(3400), s.balance("alice"))
	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestSettleIsCappedAtHeldAmount() {
	_, err := s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)
	_, err = s.ledger.Reserve(s.ctx, "alice", 300, "job-1", "node-1", 2.0)
	s.Require().NoError(err)

	// 250s at multiplier 2.0 would be 500, but only 300 was held
	settlement, err := s.ledger.Settle(s.ctx, "job-1", "node-1", 250,
		s.signReceipt("job-1", "node-1", 250))
	s.Require().NoError(err)
	s.Require().Equal(int64(300), settlement.FinalCost)
	s.Require().Equal(int64(0), settlement.Refunded)

	history, err := s.ledger.History(s.ctx, "alice", 10)
	s.Require().NoError(err)
	kinds := make(map[models.EntryKind]int64)
	for _, entry := range history {
		kinds[entry.Kind] += entry.Amount
	}
	s.Require().Equal(int64(300), kinds[models.EntryKindSettlement])
	s.Require().Zero(kinds[models.EntryKindRefund], "no refund entry when nothing is refunded")
	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestSettleIsNotRepeatable() {
	_, err := s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)
	_, err = s.ledger.Reserve(s.ctx, "alice", 300, "job-1", "node-1", 1.0)
	s.Require().NoError(err)

	_, err = s.ledger.Settle(s.ctx, "job-1", "node-1", 100,
		s.signReceipt("job-1", "node-1", 100))
	s.Require().NoError(err)
	balanceAfterFirst := s.balance("alice")

	// the reservation is gone, so a replayed receipt cannot charge twice
	_, err = s.ledger.Settle(s.ctx, "job-1", "node-1", 100,
		s.signReceipt("job-1", "node-1", 100))
	s.Require().True(models.IsErrorWithCode(err, models.NotFoundError))
	s.Require().Equal(balanceAfterFirst, s.balance("alice"))
	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestBadSignatureLeavesReservationOpen() {
	_, err := s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)
	_, err = s.ledger.Reserve(s.ctx, "alice", 300, "job-1", "node-1", 1.0)
	s.Require().NoError(err)

	_, err = s.ledger.Settle(s.ctx, "job-1", "node-1", 100, "bogus-signature")
	s.Require().True(models.IsErrorWithCode(err, models.SignatureInvalid))

	_, err = s.ledger.GetReservation(s.ctx, "job-1")
	s.Require().NoError(err, "the reservation must survive a rejected receipt")

	// a correct receipt still settles afterwards
	_, err = s.ledger.Settle(s.ctx, "job-1", "node-1", 100,
		s.signReceipt("job-1", "node-1", 100))
	s.Require().NoError(err)
	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestReceiptFromWrongNodeIsRejected() {
	_, err := s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)
	_, err = s.ledger.Reserve(s.ctx, "alice", 300, "job-1", "node-1", 1.0)
	s.Require().NoError(err)

	// node-2 signs a valid receipt for a job reserved against node-1
	_, err = s.ledger.Settle(s.ctx, "job-1", "node-2", 100,
		s.signReceipt("job-1", "node-2", 100))
	s.Require().True(models.IsErrorWithCode(err, models.SignatureInvalid))

	_, err = s.ledger.GetReservation(s.ctx, "job-1")
	s.Require().NoError(err)
}

func (s *LedgerSuite) TestSweepRefundsExpiredReservations() {
	_, err := s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)
	_, err = s.ledger.Reserve(s.ctx, "alice", 300, "job-1", "node-1", 1.0)
	s.Require().NoError(err)
	s.Require().Equal(int64(3300), s.balance("alice"))

	sweptBefore := testutil.ToFloat64(telemetry.ReservationsSwept)

	// not yet expired
	swept, err := s.ledger.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Require().Zero(swept)
	s.Require().Equal(sweptBefore, testutil.ToFloat64(telemetry.ReservationsSwept))

	s.clock.Add(15 * time.Minute)
	swept, err = s.ledger.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(1, swept)
	s.Require().Equal(sweptBefore+1, testutil.ToFloat64(telemetry.ReservationsSwept))

	s.Require().Equal(int64(models.StarterGrantSeconds), s.balance("alice"))
	_, err = s.ledger.GetReservation(s.ctx, "job-1")
	s.Require().True(models.IsErrorWithCode(err, models.NotFoundError))

	// the job can no longer settle
	_, err = s.ledger.Settle(s.ctx, "job-1", "node-1", 100,
		s.signReceipt("job-1", "node-1", 100))
	s.Require().True(models.IsErrorWithCode(err, models.NotFoundError))
	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestHistoryNewestFirst() {
	_, err := s.ledger.EnsureAccount(s.ctx, "alice")
	s.Require().NoError(err)
	s.clock.Add(time.Second)
	_, err = s.ledger.Reserve(s.ctx, "alice", 300, "job-1", "node-1", 1.0)
	s.Require().NoError(err)
	s.clock.Add(time.Second)
	_, err = s.ledger.Settle(s.ctx, "job-1", "node-1", 100,
		s.signReceipt("job-1", "node-1", 100))
	s.Require().NoError(err)

	history, err := s.ledger.History(s.ctx, "alice", 10)
	s.Require().NoError(err)
	s.Require().Len(history, 4, "grant, reservation, settlement, refund")
	s.Require().Equal(models.EntryKindGrant, history[len(history)-1].Kind)
	for i := 1; i < len(history); i++ {
		s.Require().False(history[i].CreatedAt.After(history[i-1].CreatedAt))
	}
}

func (s *LedgerSuite) TestReceiptSignatureRoundTrip() {
	signature := ReceiptSignature(testSecret, "job-1", "node-1", 100)
	s.Require().True(VerifyReceipt(testSecret, "job-1", "node-1", 100, signature))
	s.Require().False(VerifyReceipt(testSecret, "job-1", "node-1", 101, signature))
	s.Require().False(VerifyReceipt(testSecret, "job-2", "node-1", 100, signature))
	s.Require().False(VerifyReceipt([]byte("other-secret"), "job-1", "node-1", 100, signature))
}
