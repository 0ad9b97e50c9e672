package store

import (
	"context"
	"log"
	"time"
)

// Reaper sweeps idle sessions in the background so expiry never runs inline
// with request handling.
type Reaper struct {
	store    SessionStore
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewReaper(st SessionStore, interval time.Duration) *Reaper {
	r := &Reaper{
		store:    st,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Reaper) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := r.store.Reap(context.Background(), time.Now())
			if err != nil {
				log.Printf("reaper: sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("reaper: removed %d idle sessions", n)
			}
		case <-r.stop:
			return
		}
	}
}

// Close stops the sweep loop and waits for it to exit.
func (r *Reaper) Close() {
	close(r.stop)
	<-r.done
}
