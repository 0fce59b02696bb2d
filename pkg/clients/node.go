package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/100monkeys-ai/monkey-troop/pkg/lib/breaker"
	"github.com/100monkeys-ai/monkey-troop/pkg/lib/retrier"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

type NodeClientParams struct {
	HTTPClient *http.Client
	Policy     *retrier.Policy
	Breakers   *breaker.Set
}

// NodeClient sends authorized inference work to worker nodes. Breakers are
// keyed per node address so one flaky node never blocks calls to the rest
// of the troop.
type NodeClient struct {
	httpClient *http.Client
	policy     retrier.Policy
	breakers   *breaker.Set
}

func NewNodeClient(params NodeClientParams) *NodeClient {
	if params.HTTPClient == nil {
		params.HTTPClient = http.DefaultClient
	}
	policy := retrier.DefaultPolicy()
	if params.Policy != nil {
		policy = *params.Policy
	}
	if params.Breakers == nil {
		params.Breakers = NewBreakerSet(breaker.SetParams{})
	}
	return &NodeClient{
		httpClient: params.HTTPClient,
		policy:     policy,
		breakers:   params.Breakers,
	}
}

// Infer posts the inference payload to the node, presenting the capability
// ticket as a bearer credential. The response body is returned opaque; its
// shape belongs to the node's engine, not to us.
func (c *NodeClient) Infer(ctx context.Context, address, ticket string, payload json.RawMessage) (json.RawMessage, error) {
	return retrier.Do(ctx, c.policy, "infer", func(ctx context.Context) (json.RawMessage, error) {
		var result json.RawMessage
		err := c.breakers.Get(address).Execute(ctx, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, models.InferenceTimeout)
			defer cancel()

			request, err := http.NewRequestWithContext(attemptCtx, http.MethodPost,
				address+"/api/v1/inference", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			request.Header.Set("Content-Type", "application/json")
			request.Header.Set("Authorization", "Bearer "+ticket)

			resp, err := c.httpClient.Do(request)
			if err != nil {
				return translateTransportError(attemptCtx, err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusOK {
				return translateHTTPError(resp)
			}
			result, err = io.ReadAll(resp.Body)
			return err
		})
		return result, err
	})
}
