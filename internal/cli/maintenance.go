package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EnriquePaullada/gp-data-v4/internal/worker"
)

var reconcileEnqueue bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <phone>",
	Short: "Recompute a lead's message count and working memory",
	Long: `Recompute message_count and recent_history from the messages
collection. With --enqueue the work is handed to the worker instead;
pending reconciles for the same lead are deduplicated.`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

var (
	eraseEnqueue bool
	eraseArchive bool
	eraseYes     bool
)

var eraseCmd = &cobra.Command{
	Use:   "erase <phone>",
	Short: "Delete a lead's conversation",
	Long: `Hard-delete every message of a lead and clear its working memory.
The lead itself is kept. --archive uploads the conversation to object
storage first and requires --enqueue, since the worker owns the archive
bucket.`,
	Example: `  leadctl erase +525512345678 --yes
  leadctl erase +525512345678 --enqueue --archive --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runErase,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileEnqueue, "enqueue", false, "Enqueue a worker task instead of running inline")

	eraseCmd.Flags().BoolVar(&eraseEnqueue, "enqueue", false, "Enqueue a worker task instead of running inline")
	eraseCmd.Flags().BoolVar(&eraseArchive, "archive", false, "Archive the conversation before erasing (with --enqueue)")
	eraseCmd.Flags().BoolVar(&eraseYes, "yes", false, "Confirm the deletion")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		leadID, err := a.leadID(args[0])
		if err != nil {
			return err
		}

		if reconcileEnqueue {
			client, closeFn, err := a.enqueuer(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := worker.EnqueueLeadReconcile(client, leadID); err != nil {
				return fmt.Errorf("failed to enqueue reconcile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reconcile enqueued for %s\n", leadID)
			return nil
		}

		lead, err := a.conversations.Reconcile(ctx, leadID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d messages, %d in working memory\n",
			lead.LeadID, lead.MessageCount, len(lead.RecentHistory))
		return nil
	})
}

func validateEraseFlags() error {
	if !eraseYes {
		return errors.New("refusing to erase without --yes")
	}
	if eraseArchive && !eraseEnqueue {
		return errors.New("--archive requires --enqueue")
	}
	return nil
}

func runErase(cmd *cobra.Command, args []string) error {
	if err := validateEraseFlags(); err != nil {
		return err
	}

	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		leadID, err := a.leadID(args[0])
		if err != nil {
			return err
		}

		if eraseEnqueue {
			client, closeFn, err := a.enqueuer(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			payload := &worker.ConversationErasePayload{LeadID: leadID, Archive: eraseArchive}
			if err := worker.EnqueueConversationErase(client, payload); err != nil {
				return fmt.Errorf("failed to enqueue erase: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "erase enqueued for %s\n", leadID)
			return nil
		}

		deleted, err := a.conversations.EraseConversation(ctx, leadID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "erased %d messages for %s\n", deleted, leadID)
		return nil
	})
}
