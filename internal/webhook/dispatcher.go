package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sydlexius/confluence/internal/event"
)

const (
	maxRetries     = 3
	requestTimeout = 10 * time.Second

	// At most deliveryBurst requests go out at once, then one per
	// deliveryInterval, across all webhooks.
	deliveryInterval = 250 * time.Millisecond
	deliveryBurst    = 8
)

// Dispatcher posts events to the webhooks subscribed to them.
type Dispatcher struct {
	webhooks   []Webhook
	httpClient *http.Client
	backoff    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewDispatcher creates a dispatcher for the configured webhooks.
func NewDispatcher(webhooks []Webhook, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithHTTPClient(webhooks, &http.Client{Timeout: requestTimeout}, logger)
}

// NewDispatcherWithHTTPClient creates a dispatcher with a custom HTTP client (for testing).
func NewDispatcherWithHTTPClient(webhooks []Webhook, httpClient *http.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		webhooks:   webhooks,
		httpClient: httpClient,
		backoff:    time.Second,
		limiter:    rate.NewLimiter(rate.Every(deliveryInterval), deliveryBurst),
		logger:     logger.With(slog.String("component", "webhook-dispatcher")),
	}
}

// HandleEvent is an event.Handler that delivers e to every subscribed
// webhook in the background.
func (d *Dispatcher) HandleEvent(e event.Event) {
	for i := range d.webhooks {
		w := &d.webhooks[i]
		if !w.Wants(string(e.Type)) {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(w, e)
		}()
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(w *Webhook, e event.Event) {
	body, contentType := formatPayload(w, e)

	var lastErr error
	for attempt := range maxRetries {
		if attempt > 0 {
			time.Sleep(d.backoff << (attempt - 1))
		}

		lastErr = d.send(w.URL, body, contentType)
		if lastErr == nil {
			d.logger.Debug("webhook delivered", "webhook", w.Name, "event", string(e.Type), "attempt", attempt+1)
			return
		}
		d.logger.Warn("webhook delivery failed", "webhook", w.Name, "event", string(e.Type), "attempt", attempt+1, "error", lastErr)
	}

	d.logger.Error("webhook delivery exhausted retries", "webhook", w.Name, "event", string(e.Type), "error", lastErr)
}

func (d *Dispatcher) send(url string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for delivery slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "Confluence-Webhook/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()        //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
