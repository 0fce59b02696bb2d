package coordinator

import (
	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"

	"github.com/100monkeys-ai/monkey-troop/pkg/audit"
	"github.com/100monkeys-ai/monkey-troop/pkg/ledger"
	"github.com/100monkeys-ai/monkey-troop/pkg/lib/ratelimit"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/middleware"
	"github.com/100monkeys-ai/monkey-troop/pkg/registry"
	"github.com/100monkeys-ai/monkey-troop/pkg/ticket"
)

type EndpointParams struct {
	Router    *echo.Echo
	Store     registry.LeaseStore
	Selector  *registry.Selector
	Authority *ticket.Authority
	Signer    *ticket.Signer
	Ledger    *ledger.Ledger
	Limiter   *ratelimit.Limiter
	Sink      audit.Sink
	Clock     clock.Clock
}

type Endpoint struct {
	router     *echo.Echo
	store      registry.LeaseStore
	selector   *registry.Selector
	authority  *ticket.Authority
	signer     *ticket.Signer
	ledger     *ledger.Ledger
	limiter    *ratelimit.Limiter
	sink       audit.Sink
	clock      clock.Clock
	challenges *challengeStore
}

func NewEndpoint(params EndpointParams) (*Endpoint, error) {
	if params.Sink == nil {
		params.Sink = audit.NoopSink{}
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	e := &Endpoint{
		router:     params.Router,
		store:      params.Store,
		selector:   params.Selector,
		authority:  params.Authority,
		signer:     params.Signer,
		ledger:     params.Ledger,
		limiter:    params.Limiter,
		sink:       params.Sink,
		clock:      params.Clock,
		challenges: newChallengeStore(params.Clock),
	}

	// JSON group
	g := e.router.Group("/api/v1")
	g.Use(middleware.SetContentType(echo.MIMEApplicationJSON))
	g.GET("/healthz", e.healthz)
	g.POST("/heartbeat", e.heartbeat)
	g.POST("/authorize", e.authorize)
	g.POST("/receipts", e.receipt)
	g.GET("/accounts/:identity/balance", e.balance)
	g.GET("/accounts/:identity/history", e.history)
	g.POST("/hardware/challenge", e.hardwareChallenge)
	g.POST("/hardware/verify", e.hardwareVerify)

	// Discovery routes share a per-IP rate limit tier.
	discovery := g.Group("")
	discovery.Use(middleware.RateLimitByIP(middleware.RateLimitTierParams{
		Limiter: params.Limiter,
		Tier:    "discovery",
		Limit:   models.DiscoveryRateLimit,
		Window:  models.RateLimitWindow,
		Sink:    params.Sink,
	}))
	discovery.GET("/public-key", e.publicKey)
	discovery.GET("/peers", e.peers)
	discovery.GET("/models", e.models)

	return e, nil
}
