package policy

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultReconcileInterval = time.Minute

// Reconciler periodically re-reads the active policy table from the backing
// store so externally-edited tables are picked up without a restart. A failed
// poll logs and keeps the last good table; it never affects the request path.
type Reconciler struct {
	store    *Store
	interval time.Duration

	// onResult, when set, observes each poll outcome. Used for metrics.
	onResult func(err error)
}

// NewReconciler constructs a reconciler for store.
func NewReconciler(store *Store, interval time.Duration) *Reconciler {
	if store == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &Reconciler{store: store, interval: interval}
}

// OnResult registers an observer for poll outcomes.
func (r *Reconciler) OnResult(fn func(err error)) {
	if r == nil {
		return
	}
	r.onResult = fn
}

// Start launches the reconcile loop in a background goroutine.
func (r *Reconciler) Start(ctx context.Context) {
	if r == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go r.run(ctx)
	log.Infof("policy reconciler started (interval=%s)", r.interval)
}

func (r *Reconciler) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
		r.reconcileOnce(ctx)
	}
}

func (r *Reconciler) reconcileOnce(ctx context.Context) {
	errRefresh := r.store.Refresh(ctx)
	if r.onResult != nil {
		r.onResult(errRefresh)
	}
	if errRefresh != nil {
		log.WithError(errRefresh).Warn("policy reconciler: refresh failed, last good table retained")
	}
}
