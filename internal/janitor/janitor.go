package janitor

import (
	"context"
	"log/slog"
	"time"
)

// Task deletes stale rows and reports how many went away.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Start runs every task once per interval until done is closed.
func Start(interval time.Duration, done <-chan struct{}, tasks ...Task) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				RunOnce(context.Background(), tasks...)
			case <-done:
				return
			}
		}
	}()
}

func RunOnce(ctx context.Context, tasks ...Task) {
	for _, t := range tasks {
		deleted, err := t.Run(ctx)
		if err != nil {
			slog.Error("cleanup failed", "task", t.Name, "error", err)
		} else if deleted > 0 {
			slog.Info("cleanup completed", "task", t.Name, "deleted", deleted)
		}
	}
}
