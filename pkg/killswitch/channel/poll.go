package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aigos/governor/pkg/killswitch"
)

// PollChannel receives kill-switch commands by periodically fetching a JSON
// array of pending commands; an empty array is a valid heartbeat (spec §6).
type PollChannel struct {
	URL      string
	Client   *http.Client
	Interval time.Duration
	Logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start begins polling on Interval until Stop is called.
func (p *PollChannel) Start(ctx context.Context, onCommand Handler) error {
	if p.Client == nil {
		p.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if p.Interval == 0 {
		p.Interval = 5 * time.Second
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "killswitch.channel.PollChannel")

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := p.poll(runCtx, onCommand); err != nil {
					logger.Warn("poll failed", "error", err)
				}
			}
		}
	}()
	return nil
}

func (p *PollChannel) poll(ctx context.Context, onCommand Handler) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var cmds []killswitch.Command
	if err := json.Unmarshal(body, &cmds); err != nil {
		return err
	}
	for _, cmd := range cmds {
		onCommand(ctx, cmd)
	}
	return nil
}

// Stop terminates polling and waits for it to exit.
func (p *PollChannel) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if done != nil {
		<-done
	}
	return nil
}
