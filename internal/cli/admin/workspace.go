// Package admin holds quilld's operator commands: serving the API and
// managing workspaces and API keys directly against the database.
package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/quill-labs/quillai/internal/config"
	"github.com/quill-labs/quillai/internal/repository"
	"github.com/quill-labs/quillai/internal/service"
)

// getDBPool connects using the QUILL_DATABASE_URL from the environment.
// Admin commands talk to the database directly rather than through the API.
func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func WorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces",
		Long:  "Create and list workspaces",
	}
	cmd.AddCommand(WorkspaceCreateCmd(), WorkspaceListCmd())
	return cmd
}

func WorkspaceCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new workspace",
		Long:  "Create a new workspace with the specified name",
		Args:  cobra.ExactArgs(1),
		RunE:  runWorkspaceCreate,
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	return cmd
}

func runWorkspaceCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	authSvc := service.NewAuthService(repository.NewWorkspaceRepository(pool), nil, &service.DefaultUUIDGenerator{})

	ws, err := authSvc.CreateWorkspace(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	if outputFormat == "json" {
		printJSON(map[string]interface{}{
			"id":         ws.ID,
			"name":       ws.Name,
			"created_at": ws.CreatedAt,
		})
		return nil
	}
	fmt.Printf("Workspace created: %s (%s)\n", ws.Name, ws.ID)
	return nil
}

func WorkspaceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all workspaces",
		Long:  "List all workspaces in the system",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runWorkspaceList(outputFormat)
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	return cmd
}

func runWorkspaceList(outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	workspaces, err := repository.NewWorkspaceRepository(pool).List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workspaces: %w", err)
	}

	if outputFormat == "json" {
		rows := make([]map[string]interface{}, len(workspaces))
		for i, ws := range workspaces {
			rows[i] = map[string]interface{}{
				"id":         ws.ID,
				"name":       ws.Name,
				"created_at": ws.CreatedAt,
			}
		}
		printJSON(rows)
		return nil
	}

	if len(workspaces) == 0 {
		fmt.Println("No workspaces found")
		return nil
	}
	fmt.Println("Workspaces:")
	for _, ws := range workspaces {
		fmt.Printf("  %s: %s (created: %s)\n", ws.ID, ws.Name, ws.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
