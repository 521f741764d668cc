package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aigos/governor/pkg/killswitch"
)

// FileChannel receives kill-switch commands by tailing a JSON-lines file:
// each new object appended triggers delivery (spec §6). On every Interval
// tick it reopens the file and reads from the last consumed byte offset,
// rather than depending on a filesystem-notification library, since
// none is part of this deployment's dependency set.
type FileChannel struct {
	Path     string
	Interval time.Duration
	Logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (f *FileChannel) Start(ctx context.Context, onCommand Handler) error {
	if f.Interval == 0 {
		f.Interval = time.Second
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "killswitch.channel.FileChannel")

	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.done = make(chan struct{})
	f.mu.Unlock()

	go func() {
		defer close(f.done)
		var offset int64
		ticker := time.NewTicker(f.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				newOffset, err := f.readNew(offset, onCommand, runCtx)
				if err != nil {
					if !os.IsNotExist(err) {
						logger.Warn("file watch read failed", "error", err)
					}
					continue
				}
				offset = newOffset
			}
		}
	}()
	return nil
}

func (f *FileChannel) readNew(offset int64, onCommand Handler, ctx context.Context) (int64, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return offset, err
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	bytesRead := offset
	for scanner.Scan() {
		line := scanner.Bytes()
		bytesRead += int64(len(line)) + 1
		if len(line) == 0 {
			continue
		}
		var cmd killswitch.Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			continue
		}
		onCommand(ctx, cmd)
	}
	if err := scanner.Err(); err != nil {
		return offset, err
	}
	return bytesRead, nil
}

func (f *FileChannel) Stop() error {
	f.mu.Lock()
	cancel := f.cancel
	done := f.done
	f.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if done != nil {
		<-done
	}
	return nil
}
