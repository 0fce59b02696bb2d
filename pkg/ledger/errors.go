package ledger

import (
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

func NewErrInsufficientCredit(identity string, requested, balance int64) *models.BaseError {
	return models.NewBaseError("account %s has %d credit-seconds, needs %d", identity, balance, requested).
		WithCode(models.InsufficientCredit).
		WithComponent("Ledger").
		WithHint("settle or wait out open reservations to free held credit")
}

func NewErrAccountNotFound(identity string) *models.BaseError {
	return models.NewBaseError("account %s not found", identity).
		WithCode(models.NotFoundError).
		WithComponent("Ledger")
}

func NewErrReservationNotFound(jobID string) *models.BaseError {
	return models.NewBaseError("no open reservation for job %s", jobID).
		WithCode(models.NotFoundError).
		WithComponent("Ledger").
		WithHint("the job may already be settled or its reservation expired")
}

func NewErrReceiptSignatureInvalid(jobID, nodeID string) *models.BaseError {
	return models.NewBaseError("receipt signature for job %s from node %s does not verify", jobID, nodeID).
		WithCode(models.SignatureInvalid).
		WithComponent("Ledger")
}
