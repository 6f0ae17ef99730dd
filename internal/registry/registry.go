// Package registry polls the ServiceAtlas registry for routes and service
// instances, merges them with the locally-parsed route file, and keeps the
// route.Cache and the load balancer's BackendSet up to date. It degrades
// gracefully: an unreachable registry is never fatal (spec §4.2/§7).
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hermesgw/hermes/internal/config"
	"github.com/hermesgw/hermes/internal/loadbalancer"
	"github.com/hermesgw/hermes/internal/logging"
	"github.com/hermesgw/hermes/internal/route"
)

// Instance mirrors config.InstanceEntry; active_conn_count is owned by the
// load balancer, not the registry, per spec §3 Ownership.
type Instance struct {
	InstanceID string
	BaseURL    string
	Healthy    bool
}

// Client polls ServiceAtlas on a fixed interval and keeps both a
// route.Cache and a loadbalancer.BackendSet current. The data plane never
// calls the registry directly: it only ever reads the BackendSet snapshot
// this poll loop maintains (spec §3: "healthy set is re-read from
// registry per refresh", not per request).
type Client struct {
	baseURL    string
	httpClient *http.Client

	pollInterval time.Duration
	bootTimeout  time.Duration

	priorityBoost   int32
	fallbackToLocal bool
	localRoutesFile string
	loader          *config.Loader

	cache    *route.Cache
	backends *loadbalancer.BackendSet
}

// Options configures a new Client.
type Options struct {
	BaseURL         string
	PollInterval    time.Duration
	BootTimeout     time.Duration
	PriorityBoost   int32
	FallbackToLocal bool
	LocalRoutesFile string
	HTTPClient      *http.Client

	// Backends is the shared balancer backend set this Client refreshes
	// with each poll. May be nil (tests that only exercise routing).
	Backends *loadbalancer.BackendSet
}

// New constructs a Client bound to cache.
func New(opts Options, cache *route.Cache) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL:         opts.BaseURL,
		httpClient:      hc,
		pollInterval:    opts.PollInterval,
		bootTimeout:     opts.BootTimeout,
		priorityBoost:   opts.PriorityBoost,
		fallbackToLocal: opts.FallbackToLocal,
		localRoutesFile: opts.LocalRoutesFile,
		loader:          config.NewLoader(),
		cache:           cache,
		backends:        opts.Backends,
	}
}

// Bootstrap runs one refresh bounded by bootTimeout, then proceeds with
// whatever table resulted (local-only if the registry didn't answer in
// time), per spec §4.2: "first refresh blocks startup up to a bounded
// timeout, after which the gateway proceeds with local-only routing."
func (c *Client) Bootstrap(ctx context.Context) {
	bctx, cancel := context.WithTimeout(ctx, c.bootTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.refresh(bctx)
		close(done)
	}()

	select {
	case <-done:
	case <-bctx.Done():
		logging.Warn("registry bootstrap timed out, proceeding with local-only routes")
		c.installLocalOnly(context.Background())
	}
}

// Run polls on a fixed interval until ctx is cancelled. Each poll refreshes
// both the route table and, for every service_id the current table
// references, the balancer's backend set.
func (c *Client) Run(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *Client) refresh(ctx context.Context) {
	local, err := c.loadLocal()
	if err != nil {
		logging.Warn("failed to load local routes", zap.Error(err))
		local = nil
	}

	remote, err := c.fetchRoutes(ctx)
	if err != nil {
		logging.Warn("registry unreachable, routes refresh degraded", zap.Error(err))
		if c.fallbackToLocal {
			c.installRoutes(ctx, nil, local)
		}
		// else: retain previous table and backend set untouched.
		return
	}

	c.installRoutes(ctx, remote, local)
}

func (c *Client) installLocalOnly(ctx context.Context) {
	local, err := c.loadLocal()
	if err != nil {
		logging.Warn("failed to load local routes", zap.Error(err))
		return
	}
	c.installRoutes(ctx, nil, local)
}

func (c *Client) installRoutes(ctx context.Context, remote, local []config.RouteEntry) {
	table, errs := route.Merge(remote, local, c.priorityBoost, nil)
	for _, e := range errs {
		logging.Warn("dropping malformed route entry", zap.Error(e))
	}
	c.cache.Install(table)
	c.refreshBackends(ctx, table)
}

// refreshBackends polls instances for every service_id the table
// references — both a route's own target and any route's auth_service_id
// — and folds the result into the shared BackendSet. A service whose
// instance fetch fails keeps its previous entries (graceful degradation,
// spec §4.2/§7); it is not cleared.
func (c *Client) refreshBackends(ctx context.Context, table *route.Table) {
	if c.backends == nil {
		return
	}

	serviceIDs := make(map[string]bool)
	for _, r := range table.Routes() {
		if r.ServiceID != "" {
			serviceIDs[r.ServiceID] = true
		}
		if r.Auth.AuthServiceID != "" {
			serviceIDs[r.Auth.AuthServiceID] = true
		}
	}

	for serviceID := range serviceIDs {
		instances, err := c.fetchInstances(ctx, serviceID)
		if err != nil {
			logging.Warn("failed to refresh service instances",
				zap.String("service_id", serviceID), zap.Error(err))
			continue
		}
		infos := make([]loadbalancer.InstanceInfo, len(instances))
		for i, inst := range instances {
			infos[i] = loadbalancer.InstanceInfo{InstanceID: inst.InstanceID, BaseURL: inst.BaseURL, Healthy: inst.Healthy}
		}
		c.backends.Update(serviceID, infos)
	}
}

func (c *Client) loadLocal() ([]config.RouteEntry, error) {
	if c.localRoutesFile == "" {
		return nil, nil
	}
	rf, err := c.loader.LoadRoutes(c.localRoutesFile)
	if err != nil {
		return nil, err
	}
	return rf.Routes, nil
}

func (c *Client) fetchRoutes(ctx context.Context) ([]config.RouteEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/gateway/routes", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("registry routes: status %d: %s", resp.StatusCode, body)
	}
	var entries []config.RouteEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode registry routes: %w", err)
	}
	return entries, nil
}

func (c *Client) fetchInstances(ctx context.Context, serviceID string) ([]Instance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/services/"+serviceID+"/instances", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry instances(%s): status %d", serviceID, resp.StatusCode)
	}
	var entries []config.InstanceEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode instances: %w", err)
	}
	out := make([]Instance, len(entries))
	for i, e := range entries {
		out[i] = Instance{InstanceID: e.InstanceID, BaseURL: e.BaseURL, Healthy: e.Healthy}
	}
	return out, nil
}
