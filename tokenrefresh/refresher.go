// Package tokenrefresh implements the background access-token refresher:
// once a minute it checks the on-disk token cache entry for the signed-in
// email, refreshes it with the auth service if it is
// within five minutes of expiry, persists the result, and atomically swaps
// the in-memory access token the session runtime's sender loop reads.
package tokenrefresh

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wizardsardine/liana-business-session/authapi"
	"github.com/wizardsardine/liana-business-session/bclog"
	"github.com/wizardsardine/liana-business-session/config"
	"github.com/wizardsardine/liana-business-session/tokencache"
)

// Refresher runs the periodic refresh loop for one signed-in account. The
// session runtime starts one on each successful connect and stops it on
// disconnect, logout or session close.
type Refresher struct {
	dir       string
	network   config.Network
	client    *authapi.Client
	interval  time.Duration
	threshold time.Duration

	token atomic.Value // string

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

// New constructs a Refresher for client's email, seeded with initial's
// current access token. The returned Refresher is not yet running; call
// Start.
func New(dir string, network config.Network, client *authapi.Client, interval, threshold time.Duration, initial authapi.Tokens) *Refresher {
	r := &Refresher{
		dir:       dir,
		network:   network,
		client:    client,
		interval:  interval,
		threshold: threshold,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.token.Store(initial.AccessToken)
	return r
}

// AccessToken returns the most recently refreshed access token, safe for
// concurrent use by the sender loop while a refresh is in flight.
func (r *Refresher) AccessToken() string {
	return r.token.Load().(string)
}

// Start launches the refresh loop in its own goroutine.
func (r *Refresher) Start() {
	go r.run()
}

// Stop signals the refresh loop to exit without waiting for an in-flight
// refresh cycle to finish, so logout never blocks on a slow auth service
//.
func (r *Refresher) Stop() {
	r.quitOnce.Do(func() { close(r.quit) })
}

// Wait blocks until the refresh loop has actually exited; the tests use it.
func (r *Refresher) Wait() {
	<-r.done
}

func (r *Refresher) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Refresher) tick() {
	cache, err := tokencache.FromFile(r.dir, r.network)
	if err != nil {
		bclog.RfrLog.Warnf("token refresh: cache unreadable: %v", err)
		return
	}

	email := r.client.Email()
	var current authapi.Tokens
	found := false
	for _, acc := range cache.Accounts {
		if acc.Email == email {
			current = acc.Tokens
			found = true
			break
		}
	}
	if !found {
		bclog.RfrLog.Debugf("token refresh: no cached account for %s", email)
		return
	}

	if !current.Expired(r.threshold, time.Now()) {
		return
	}

	fresh, err := r.client.RefreshToken(current.RefreshToken)
	if err != nil {
		bclog.RfrLog.Warnf("token refresh failed for %s: %v", email, err)
		return
	}

	if _, err := tokencache.Update(r.dir, r.network, fresh, r.client, false); err != nil {
		bclog.RfrLog.Warnf("token refresh: cache write failed for %s: %v", email, err)
	}

	r.token.Store(fresh.AccessToken)
	bclog.RfrLog.Infof("refreshed access token for %s", email)
}
