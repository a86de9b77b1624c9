package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-dash/internal/queue"
	"github.com/sells-group/prospect-dash/internal/reconcile"
)

var watchCmd = &cobra.Command{
	Use:   "watch <prospect-id>",
	Short: "Follow a prospect's enhancement progress",
	Long: `Subscribes to the prospect's progress stream and prints state changes.
If the stream drops, falls back to polling the queue snapshot at an
adaptive cadence until the job reaches a terminal state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prospectID := args[0]
		client := newAPIClient()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		done := make(chan struct{})
		tracker := reconcile.NewTracker(
			reconcile.WithEffectFunc(func(id string, effects []reconcile.Effect) {
				for _, ef := range effects {
					switch ef.Kind {
					case reconcile.EffectNotify:
						fmt.Printf("[%s] %s\n", ef.Level, ef.Message)
					case reconcile.EffectConnectionLost:
						fmt.Printf("[warn] %s\n", ef.Message)
					}
				}
			}),
		)
		defer tracker.Stop()
		tracker.Track(prospectID)

		go func() {
			defer close(done)
			watchLoop(ctx, client, tracker, prospectID)
		}()

		// Print state transitions until the job finishes.
		var last reconcile.State
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-done:
				return nil
			case <-ticker.C:
				state, ok := tracker.Get(prospectID)
				if !ok {
					// Cleaned up after its terminal state.
					return nil
				}
				if state.Status != last.Status || state.CurrentStep != last.CurrentStep ||
					state.QueuePosition != last.QueuePosition {
					printState(state)
					last = state
				}
				if state.Status.Terminal() {
					return nil
				}
			}
		}
	},
}

// watchLoop runs the SSE watcher and, when the stream drops, polls the
// queue snapshot at the reconciler's adaptive cadence.
func watchLoop(ctx context.Context, client *apiClient, tracker *reconcile.Tracker, prospectID string) {
	watcher := reconcile.NewWatcher(client.baseURL, tracker)
	pollCfg := reconcile.PollConfig{
		Fast:    time.Duration(cfg.Poll.FastMs) * time.Millisecond,
		Medium:  time.Duration(cfg.Poll.MediumMs) * time.Millisecond,
		IdleMin: time.Duration(cfg.Poll.IdleMinMs) * time.Millisecond,
		IdleMax: time.Duration(cfg.Poll.IdleMaxMs) * time.Millisecond,
	}

	if err := watcher.Watch(ctx, prospectID); err != nil {
		zap.L().Debug("progress stream dropped, polling", zap.Error(err))
	} else {
		return
	}

	idleSince := time.Now()
	for {
		var st queue.Status
		if err := client.do(ctx, http.MethodGet, "/api/queue/status", nil, &st); err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().Debug("snapshot poll failed", zap.Error(err))
		} else {
			tracker.HandleSnapshot(st)
		}

		state, ok := tracker.Get(prospectID)
		if !ok || state.Status.Terminal() {
			return
		}

		activity := tracker.Activity()
		if activity != reconcile.ActivityIdle {
			idleSince = time.Now()
		}
		interval := reconcile.PollingInterval(pollCfg, activity, time.Since(idleSince))
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func printState(s reconcile.State) {
	switch s.Status {
	case reconcile.StatusQueued:
		fmt.Printf("queued at position %d of %d\n", s.QueuePosition, s.QueueSize)
	case reconcile.StatusProcessing:
		if s.CurrentStep != "" {
			fmt.Printf("processing: %s\n", s.CurrentStep)
		} else {
			fmt.Println("processing")
		}
	default:
		fmt.Println(string(s.Status))
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
