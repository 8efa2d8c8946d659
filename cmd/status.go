package main

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusRunName string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint progress for a tiled run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		done, err := env.checkpoints.LoadCheckpoint(ctx, statusRunName)
		if err != nil {
			return eris.Wrapf(err, "load checkpoint for %s", statusRunName)
		}
		failed, err := env.checkpoints.LoadFailed(ctx, statusRunName)
		if err != nil {
			return eris.Wrapf(err, "load failures for %s", statusRunName)
		}

		fmt.Printf("run:       %s\n", statusRunName)
		fmt.Printf("completed: %d tiles\n", len(done))
		fmt.Printf("failed:    %d tiles\n", len(failed))

		if len(failed) > 0 {
			ids := make([]string, 0, len(failed))
			for id := range failed {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			fmt.Println("\nfailed tiles:")
			for _, id := range ids {
				fmt.Printf("  %s: %s\n", id, failed[id])
			}
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the gaps schema and checkpoint tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.checkpoints.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		fmt.Println("schema up to date")
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusRunName, "run", "", "run name")
	_ = statusCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(migrateCmd)
}
