package cli

import (
	"github.com/spf13/cobra"

	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/database"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the MongoDB indexes and list them",
	Long: `Connect to MongoDB, create every required index and print the
indexes present on each collection. Safe to run repeatedly. The message
TTL index follows MESSAGE_RETENTION_DAYS and ENABLE_MESSAGE_ARCHIVAL.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func runSetup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		if err := a.manager.CreateIndexes(ctx); err != nil {
			return err
		}

		indexes := make(map[string][]string)
		for _, coll := range []string{database.LeadsCollection, database.MessagesCollection} {
			names, err := a.manager.IndexNames(ctx, coll)
			if err != nil {
				return err
			}
			indexes[coll] = names
		}
		return writeIndexes(cmd.OutOrStdout(), indexes)
	})
}
