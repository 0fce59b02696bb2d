package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ReceiptSignature computes the keyed hash a worker must present to settle
// a job: HMAC-SHA256 over "job_id:node_id:duration_seconds" with the
// shared receipt secret, hex encoded.
func ReceiptSignature(secret []byte, jobID, nodeID string, durationSeconds int64) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s:%s:%d", jobID, nodeID, durationSeconds)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyReceipt reports whether the presented signature matches the
// expected one, in constant time.
func VerifyReceipt(secret []byte, jobID, nodeID string, durationSeconds int64, signature string) bool {
	expected := ReceiptSignature(secret, jobID, nodeID, durationSeconds)
	return hmac.Equal([]byte(expected), []byte(signature))
}
