package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"snipcollab/internal/model"
)

// PollingOptions tune the emulated channel. Zero values fall back to the
// defaults the editor ships with.
type PollingOptions struct {
	HTTPClient    *http.Client
	Interval      time.Duration // poll cadence, default 1s
	BaseDelay     time.Duration // first reconnect delay, default 500ms
	MaxDelay      time.Duration // reconnect delay cap, default 10s
	MaxReconnects int           // reconnect budget, default 5
}

func (o *PollingOptions) fill() {
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 10 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 5
	}
}

// PollingConn emulates a duplex channel over the stateless HTTP surface:
// session creation, a fixed-interval poll with a since cursor, and
// POST-to-send. A 404 mid-poll means the session was reaped; the connection
// rejoins with exponential backoff instead of surfacing the error.
type PollingConn struct {
	baseURL   string
	authToken string
	snippetID string
	opts      PollingOptions
	client    *http.Client

	updates chan model.Update

	mu           sync.Mutex
	sessionToken string
	lastSeen     int64
	err          error
	closed       bool
	started      bool
	cancel       context.CancelFunc
	done         chan struct{}

	closeOnce sync.Once
}

func NewPollingConn(baseURL, authToken, snippetID string, opts PollingOptions) *PollingConn {
	opts.fill()
	return &PollingConn{
		baseURL:   baseURL,
		authToken: authToken,
		snippetID: snippetID,
		opts:      opts,
		client:    opts.HTTPClient,
		updates:   make(chan model.Update, 256),
		done:      make(chan struct{}),
	}
}

func (p *PollingConn) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token, err := createSession(ctx, p.client, p.baseURL, p.authToken, p.snippetID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return ErrClosed
	}
	p.sessionToken = token
	p.cancel = cancel
	p.started = true
	p.mu.Unlock()

	go p.run(runCtx)
	return nil
}

// SessionToken returns the token of the joined session, empty before Connect.
func (p *PollingConn) SessionToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionToken
}

func (p *PollingConn) Updates() <-chan model.Update { return p.updates }

func (p *PollingConn) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *PollingConn) Send(u model.Update) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	token := p.sessionToken
	p.mu.Unlock()

	body, _ := json.Marshal(map[string]any{"type": u.Type, "data": u.Data})
	req, err := http.NewRequest(http.MethodPost,
		p.baseURL+"/collaboration/sessions/"+token+"/updates", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.authToken)

	resp, err := p.client.Do(req)
	if err != nil {
		log.Printf("transport: send failed: %v", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("transport: send got status %d", resp.StatusCode)
	}
	return nil
}

func (p *PollingConn) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		token := p.sessionToken
		started := p.started
		cancel := p.cancel
		p.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if started {
			// Run loop owns the updates channel; wait for it so no
			// further polls are observable after Close returns.
			<-p.done
		} else {
			close(p.updates)
		}

		if token != "" {
			// Best-effort leave; never blocks the caller on the server.
			go p.leave(token)
		}
	})
	return nil
}

func (p *PollingConn) leave(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/collaboration/sessions/"+token+"/leave", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+p.authToken)
	if resp, err := p.client.Do(req); err == nil {
		resp.Body.Close()
	}
}

func (p *PollingConn) run(ctx context.Context) {
	defer close(p.done)
	defer close(p.updates)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.fail(err)
				return
			}
		}
	}
}

// poll fetches everything newer than the last seen timestamp. A returned
// error is terminal; transient problems are logged and absorbed.
func (p *PollingConn) poll(ctx context.Context) error {
	p.mu.Lock()
	token := p.sessionToken
	since := p.lastSeen
	p.mu.Unlock()

	url := p.baseURL + "/collaboration/sessions/" + token + "/updates?since=" + strconv.FormatInt(since, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.authToken)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("transport: poll failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload struct {
			Updates []model.Update `json:"updates"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			log.Printf("transport: poll decode failed: %v", err)
			return nil
		}
		for _, u := range payload.Updates {
			p.deliver(u)
		}
		return nil

	case http.StatusNotFound:
		// Session reaped out from under us; rejoin rather than surface.
		return p.reconnect(ctx)

	default:
		log.Printf("transport: poll got status %d", resp.StatusCode)
		return nil
	}
}

// reconnect retries session creation with exponential backoff, up to the
// fixed budget. Exhaustion is terminal and never retried automatically.
func (p *PollingConn) reconnect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.BaseDelay
	b.MaxInterval = p.opts.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	for attempt := 0; attempt < p.opts.MaxReconnects; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.NextBackOff()):
		}

		token, err := createSession(ctx, p.client, p.baseURL, p.authToken, p.snippetID)
		if err != nil {
			log.Printf("transport: reconnect attempt %d failed: %v", attempt+1, err)
			continue
		}

		p.mu.Lock()
		p.sessionToken = token
		p.mu.Unlock()
		log.Printf("transport: rejoined session after %d attempts", attempt+1)
		return nil
	}
	return ErrTransportFailure
}

func (p *PollingConn) deliver(u model.Update) {
	p.mu.Lock()
	if u.Timestamp > p.lastSeen {
		p.lastSeen = u.Timestamp
	}
	p.mu.Unlock()

	select {
	case p.updates <- u:
	default:
		// Consumer too slow; drop rather than stall the poll loop.
	}
}

func (p *PollingConn) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}
