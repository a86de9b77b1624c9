package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	enhanceGroups    []string
	enhanceForceRedo bool
	enhanceUser      string
	enhanceBulk      bool
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance [prospect-id...]",
	Short: "Queue prospects for LLM enhancement",
	Long: `Queues enhancement jobs against a running server.

With one prospect ID, queues an individual job (processed ahead of bulk
jobs). With several IDs or --bulk, queues a single bulk job; --bulk with
no IDs sweeps the backlog of unenhanced prospects.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		ctx := cmd.Context()

		body := map[string]any{
			"field_groups": enhanceGroups,
			"force_redo":   enhanceForceRedo,
			"user_id":      enhanceUser,
		}

		if len(args) == 1 && !enhanceBulk {
			body["prospect_id"] = args[0]
			var resp struct {
				QueueItemID string `json:"queue_item_id"`
				Position    int    `json:"position"`
			}
			if err := client.do(ctx, http.MethodPost, "/api/enhance-single", body, &resp); err != nil {
				return err
			}
			fmt.Printf("Queued %s at position %d (job %s)\n", args[0], resp.Position, resp.QueueItemID)
			return nil
		}

		body["prospect_ids"] = args
		var resp struct {
			QueueItemID   string `json:"queue_item_id"`
			Position      int    `json:"position"`
			ProspectCount int    `json:"prospect_count"`
		}
		if err := client.do(ctx, http.MethodPost, "/api/enhance-bulk", body, &resp); err != nil {
			return err
		}
		fmt.Printf("Queued bulk job %s covering %d prospect(s) at position %d\n",
			resp.QueueItemID, resp.ProspectCount, resp.Position)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <queue-item-id>",
	Short: "Cancel a pending enhancement job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		if err := client.do(cmd.Context(), http.MethodDelete, "/api/enhancement-queue/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Printf("Cancelled %s\n", args[0])
		return nil
	},
}

func init() {
	enhanceCmd.Flags().StringSliceVar(&enhanceGroups, "groups", nil,
		"field groups to enhance (values, contacts, naics, titles); default all")
	enhanceCmd.Flags().BoolVar(&enhanceForceRedo, "force", false, "re-enhance even when data is fresh")
	enhanceCmd.Flags().StringVar(&enhanceUser, "user", "", "requesting user id")
	enhanceCmd.Flags().BoolVar(&enhanceBulk, "bulk", false, "queue a bulk job; with no IDs, sweeps the unenhanced backlog")
	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(cancelCmd)
}
