package nodegate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/apimodels"
	"github.com/100monkeys-ai/monkey-troop/pkg/ticket"
)

// FetchVerifier fetches the coordinator's public key and builds an offline
// ticket verifier for this node. Called once at node startup; transient
// fetch failures are retried internally.
func FetchVerifier(ctx context.Context, coordinatorURL, nodeID string) (*ticket.Verifier, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = models.MaxRetryAttempts
	client.RetryWaitMin = models.BaseRetryDelay
	client.RetryWaitMax = models.MaxRetryDelay
	client.Logger = nil

	request, err := retryablehttp.NewRequestWithContext(
		ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/public-key", coordinatorURL), nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(request)
	if err != nil {
		return nil, models.NewBaseError("fetching coordinator public key: %s", err).
			WithCode(models.NetworkFailure).
			WithComponent("NodeGate").
			WithRetryable()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apimodels.GenerateAPIErrorFromHTTPResponse(resp).ToBaseError()
	}

	var body apimodels.PublicKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, models.NewBaseError("parsing coordinator public key response: %s", err).
			WithCode(models.InternalError).
			WithComponent("NodeGate")
	}

	log.Ctx(ctx).Info().
		Str("key_id", body.KeyID).
		Msg("fetched coordinator public key")
	return ticket.NewVerifierFromPEM(body.PublicKeyPEM, nodeID)
}
