package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-dash/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and control the enhancement queue",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the queue snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st queue.Status
		if err := newAPIClient().do(cmd.Context(), http.MethodGet, "/api/queue/status", nil, &st); err != nil {
			return err
		}

		running := "stopped"
		if st.WorkerRunning {
			running = "running"
		}
		fmt.Printf("Worker: %s\n", running)
		if st.CurrentItem != nil {
			fmt.Printf("Processing: %s (%s", st.CurrentItem.ID, st.CurrentItem.Kind)
			if st.CurrentItem.ProspectID != "" {
				fmt.Printf(", prospect %s", st.CurrentItem.ProspectID)
			}
			fmt.Println(")")
		}
		fmt.Printf("Pending: %d\n", st.QueueSize)
		for _, item := range st.PendingItems {
			fmt.Printf("  %2d. %s (%s)\n", item.Position, item.ID, item.Kind)
		}
		if len(st.RecentCompleted) > 0 {
			fmt.Println("Recent:")
			for _, item := range st.RecentCompleted {
				line := fmt.Sprintf("  %s  %s", item.ID, item.Status)
				if item.ErrorMessage != "" {
					line += "  " + item.ErrorMessage
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

var queueStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the enhancement worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient().do(cmd.Context(), http.MethodPost, "/api/queue/start-worker", nil, nil); err != nil {
			return err
		}
		fmt.Println("Worker started")
		return nil
	},
}

var queueStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the enhancement worker after the current job",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient().do(cmd.Context(), http.MethodPost, "/api/queue/stop-worker", nil, nil); err != nil {
			return err
		}
		fmt.Println("Worker stopping; any in-flight job will finish")
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueStatusCmd, queueStartCmd, queueStopCmd)
	rootCmd.AddCommand(queueCmd)
}
