package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/100monkeys-ai/monkey-troop/pkg/lib/breaker"
	"github.com/100monkeys-ai/monkey-troop/pkg/lib/retrier"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/apimodels"
	"github.com/100monkeys-ai/monkey-troop/pkg/telemetry"
)

// NewBreakerSet builds the breaker set clients use by default, reporting
// every state transition to the breaker transition counter.
func NewBreakerSet(params breaker.SetParams) *breaker.Set {
	if params.OnStateChange == nil {
		params.OnStateChange = recordBreakerTransition
	}
	return breaker.NewSet(params)
}

func recordBreakerTransition(target string, from, to breaker.State) {
	telemetry.BreakerTransitions.WithLabelValues(target, to.String()).Inc()
}

type CoordinatorClientParams struct {
	BaseURL    string
	HTTPClient *http.Client
	Policy     *retrier.Policy
	Breakers   *breaker.Set
}

// CoordinatorClient is the resilience-wrapped HTTP client nodes and
// requesters use to talk to the coordinator. Every call runs under the
// retry policy and the coordinator's circuit breaker, with a timeout tier
// matching the cost of the operation.
type CoordinatorClient struct {
	baseURL    string
	httpClient *http.Client
	policy     retrier.Policy
	breakers   *breaker.Set
}

func NewCoordinatorClient(params CoordinatorClientParams) *CoordinatorClient {
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
	return &CoordinatorClient{
		baseURL:    params.BaseURL,
		httpClient: params.HTTPClient,
		policy:     policy,
		breakers:   params.Breakers,
	}
}

func (c *CoordinatorClient) Authorize(ctx context.Context, request apimodels.AuthorizeRequest) (apimodels.AuthorizeResponse, error) {
	return call[apimodels.AuthorizeResponse](ctx, c, "authorize", models.AuthTimeout,
		http.MethodPost, "/api/v1/authorize", request)
}

func (c *CoordinatorClient) SubmitReceipt(ctx context.Context, request apimodels.ReceiptRequest) (apimodels.ReceiptResponse, error) {
	return call[apimodels.ReceiptResponse](ctx, c, "submit_receipt", models.AuthTimeout,
		http.MethodPost, "/api/v1/receipts", request)
}

func (c *CoordinatorClient) Heartbeat(ctx context.Context, request apimodels.HeartbeatRequest) (apimodels.HeartbeatResponse, error) {
	return call[apimodels.HeartbeatResponse](ctx, c, "heartbeat", models.DiscoveryTimeout,
		http.MethodPost, "/api/v1/heartbeat", request)
}

func (c *CoordinatorClient) Peers(ctx context.Context) (apimodels.ListPeersResponse, error) {
	return call[apimodels.ListPeersResponse](ctx, c, "peers", models.DiscoveryTimeout,
		http.MethodGet, "/api/v1/peers", nil)
}

func (c *CoordinatorClient) Models(ctx context.Context) (apimodels.ListModelsResponse, error) {
	return call[apimodels.ListModelsResponse](ctx, c, "models", models.DiscoveryTimeout,
		http.MethodGet, "/api/v1/models", nil)
}

func (c *CoordinatorClient) Balance(ctx context.Context, identity string) (apimodels.BalanceResponse, error) {
	return call[apimodels.BalanceResponse](ctx, c, "balance", models.DiscoveryTimeout,
		http.MethodGet, "/api/v1/accounts/"+identity+"/balance", nil)
}

// call layers the resilience stack around one HTTP exchange: the retry
// policy on the outside so each attempt passes the breaker's admission
// check, the breaker in the middle, and the per-tier timeout on the
// innermost context so one slow attempt cannot eat the whole retry budget.
func call[T any](
	ctx context.Context,
	c *CoordinatorClient,
	operationName string,
	timeout time.Duration,
	method string,
	path string,
	payload any,
) (T, error) {
	return retrier.Do(ctx, c.policy, operationName, func(ctx context.Context) (T, error) {
		var result T
		err := c.breakers.Get(c.baseURL).Execute(ctx, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return c.doJSON(attemptCtx, method, path, payload, &result)
		})
		return result, err
	})
}

func (c *CoordinatorClient) doJSON(ctx context.Context, method, path string, payload, result any) error {
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return translateTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return translateHTTPError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func translateTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return models.NewBaseError("request timed out: %s", err).
			WithCode(models.TimeoutError).
			WithComponent("Client").
			WithRetryable()
	}
	return models.NewBaseError("request failed: %s", err).
		WithCode(models.NetworkFailure).
		WithComponent("Client").
		WithRetryable()
}

// translateHTTPError turns an error response into a BaseError, preserving
// the server's code and retry-after where present. Server-side failures are
// transient from the caller's perspective; everything below 500 is a
// property of the request and must not be retried.
func translateHTTPError(resp *http.Response) error {
	baseErr := apimodels.GenerateAPIErrorFromHTTPResponse(resp).ToBaseError()
	if resp.StatusCode >= http.StatusInternalServerError &&
		resp.StatusCode != http.StatusNotImplemented {
		baseErr = baseErr.WithRetryable()
	}
	return baseErr
}
