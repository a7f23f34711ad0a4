package invoice

import (
	"context"
	"sync"
	"time"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/errutil"

	"go.uber.org/zap"
)

type StatusGetter interface {
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
}

// Poller watches an invoice until it is paid.
type Poller struct {
	invoices StatusGetter
	interval time.Duration
}

func NewPoller(cfg *config.Config, invoices *Service) *Poller {
	interval := cfg.Billing.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{invoices: invoices, interval: interval}
}

// Subscription is a running watch. Stop ends it and waits until no further
// status lookups happen. It is safe to call from inside onPaid.
type Subscription struct {
	cancel  context.CancelFunc
	polling chan struct{}
	done    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

func (s *Subscription) Stop() {
	s.cancel()
	<-s.polling
}

func (s *Subscription) stopPolling() {
	s.once.Do(func() { close(s.polling) })
}

// Done is closed once the watch ends for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err is the reason the watch ended on its own, nil after paid or Stop.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Watch checks the invoice every interval. onPaid runs at most once, after
// which the watch ends. Transient lookup failures are retried on the next
// tick, an unknown invoice ends the watch.
func (p *Poller) Watch(ctx context.Context, invoiceID string, onPaid func(*Invoice)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, polling: make(chan struct{}), done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer sub.stopPolling()
		defer cancel()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			inv, err := p.invoices.GetInvoice(ctx, invoiceID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errutil.IsNotFound(err) || errutil.IsValidation(err) {
					sub.setErr(err)
					return
				}
				zap.L().Warn("invoice status poll failed", zap.String("invoice_id", invoiceID), zap.Error(err))
				continue
			}

			if inv.IsPaid() {
				cancel()
				sub.stopPolling()
				if onPaid != nil {
					onPaid(inv)
				}
				return
			}
		}
	}()

	return sub
}
