package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// DeleteCmd creates the delete command.
func DeleteCmd() *cobra.Command {
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "delete <item_id>",
		Short: "Delete a knowledge item by ID",
		Long:  "Deletes a knowledge item and its embedding from the workspace.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDelete(args[0], outputJSON, idempotencyKey)
		},
	}

	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key for safe retries")

	return cmd
}

func runDelete(itemID string, outputJSON bool, idempotencyKey string) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	opts := RequestOptions{IdempotencyKey: idempotencyKey}
	if _, err := api.DeleteWithOptions(fmt.Sprintf("/items/%s", itemID), opts); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(map[string]interface{}{
			"id":      itemID,
			"deleted": true,
		}, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Deleted item: %s\n", itemID)
	}

	return nil
}
