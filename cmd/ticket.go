package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ticketbot/internal/bootstrap/logging"
	domainticket "ticketbot/internal/domain/ticket"
	"ticketbot/internal/errs"
	ticketusecase "ticketbot/internal/usecase/ticket"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Open, close and inspect tickets",
}

func newTicketOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a ticket with a private channel",
		RunE: withTickets(func(cmd *cobra.Command, deps ticketDeps) error {
			ctx := cmd.Context()

			author, err := userFlag(cmd, "author")
			if err != nil {
				return err
			}
			title, _ := cmd.Flags().GetString("title")
			description, _ := cmd.Flags().GetString("description")
			related, _ := cmd.Flags().GetString("related")

			result, err := deps.Tickets.OpenTicket(ctx, ticketusecase.OpenTicketInput{
				Author:          author,
				Title:           title,
				Description:     description,
				RelatedMentions: related,
			})
			if err != nil {
				logging.Error(ctx, "open ticket failed", slog.Any("err", errs.Loggable(err)))
				if result.TicketID != 0 {
					writeLine(cmd, "Ticket %s was stored but is not fully provisioned.", domainticket.FormatRef(result.TicketID))
				} else {
					writeLine(cmd, "Failed to open ticket %s.", domainticket.CleanText(title))
				}
				return errs.Wrap(err, "open ticket")
			}

			return writeLine(cmd, "Opened ticket <#%d>", result.ChannelID)
		}),
	}

	cmd.Flags().String("author", "", "Author user id")
	cmd.Flags().String("title", "", "Ticket title")
	cmd.Flags().String("description", "", "Ticket description")
	cmd.Flags().String("related", "", "Whitespace separated user mentions to add")
	_ = cmd.MarkFlagRequired("author")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTicketCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close a ticket and hide its channel from members",
		RunE: withTickets(func(cmd *cobra.Command, deps ticketDeps) error {
			ctx := cmd.Context()

			actor, err := userFlag(cmd, "actor")
			if err != nil {
				return err
			}
			id, err := ticketIDFlag(cmd)
			if err != nil {
				writeLine(cmd, "Invalid ticket ID.")
				return err
			}

			isModerator, err := moderatorClaim(cmd, deps, actor)
			if err != nil {
				return err
			}

			outcome, err := deps.Tickets.CloseTicket(ctx, ticketusecase.CloseTicketInput{
				Actor:       actor,
				IsModerator: isModerator,
				TicketID:    id,
			})
			if err != nil {
				logging.Error(ctx, "close ticket failed", slog.String("outcome", string(outcome)), slog.Any("err", errs.Loggable(err)))
				writeLine(cmd, "%s", closeFailureMessage(outcome, id))
				return errs.Wrap(err, "close ticket")
			}

			switch outcome {
			case ticketusecase.CloseClosed:
				return writeLine(cmd, "Closed ticket %s.", domainticket.FormatRef(id))
			case ticketusecase.CloseAlreadyClosed:
				return writeLine(cmd, "Ticket %s is already closed.", domainticket.FormatRef(id))
			default:
				return writeLine(cmd, "Ticket %s not found.", domainticket.FormatRef(id))
			}
		}),
	}

	cmd.Flags().String("actor", "", "Moderator user id")
	cmd.Flags().String("id", "", "Ticket id, e.g. 12 or #12")
	cmd.Flags().Bool("refresh-roles", false, "Ignore the cached moderator answer for --actor")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newTicketShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one of your tickets",
		RunE: withTickets(func(cmd *cobra.Command, deps ticketDeps) error {
			ctx := cmd.Context()

			requester, err := userFlag(cmd, "requester")
			if err != nil {
				return err
			}
			id, err := ticketIDFlag(cmd)
			if err != nil {
				writeLine(cmd, "Invalid ticket ID.")
				return err
			}

			t, err := deps.Tickets.ShowTicket(ctx, requester, id)
			if err != nil {
				if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrForbidden) {
					writeLine(cmd, "Invalid ticket ID.")
				}
				return errs.Wrap(err, "show ticket")
			}
			return writeLine(cmd, "%s", renderTicket(t))
		}),
	}

	cmd.Flags().String("requester", "", "Requesting user id")
	cmd.Flags().String("id", "", "Ticket id, e.g. 12 or #12")
	_ = cmd.MarkFlagRequired("requester")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

type listKind int

const (
	listOpen listKind = iota
	listAll
	listOrphans
)

func newTicketListCmd(use string, short string, kind listKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: withTickets(func(cmd *cobra.Command, deps ticketDeps) error {
			ctx := cmd.Context()

			actor, err := userFlag(cmd, "actor")
			if err != nil {
				return err
			}
			isModerator, err := moderatorClaim(cmd, deps, actor)
			if err != nil {
				return err
			}

			var items []ticketusecase.Summary
			switch kind {
			case listOpen:
				items, err = deps.Tickets.ListOpenTickets(ctx, isModerator)
			case listAll:
				items, err = deps.Tickets.ListAllTickets(ctx, isModerator)
			default:
				items, err = deps.Tickets.ListOrphanedTickets(ctx, isModerator)
			}
			if err != nil {
				logging.Error(ctx, "list tickets failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "list tickets")
			}

			return writeLine(cmd, "%s", renderSummaries(items, kind))
		}),
	}

	cmd.Flags().String("actor", "", "Moderator user id")
	cmd.Flags().Bool("refresh-roles", false, "Ignore the cached moderator answer for --actor")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

// closeFailureMessage tells a failed close apart from a close that committed
// but could not restrict the channel.
func closeFailureMessage(outcome ticketusecase.CloseOutcome, id uint64) string {
	if outcome == ticketusecase.CloseClosed {
		return fmt.Sprintf("Ticket %s is closed, but its channel could not be restricted to moderators.", domainticket.FormatRef(id))
	}
	return fmt.Sprintf("Failed to close ticket %s.", domainticket.FormatRef(id))
}

// moderatorClaim resolves the moderator role of actor. --refresh-roles drops
// the cached answer first, e.g. right after a role change.
func moderatorClaim(cmd *cobra.Command, deps ticketDeps, actor uint64) (bool, error) {
	ctx := cmd.Context()

	if refresh, _ := cmd.Flags().GetBool("refresh-roles"); refresh {
		if err := deps.Access.Forget(ctx, actor); err != nil {
			logging.Warn(ctx, "drop cached moderator answer failed", slog.Any("err", errs.Loggable(err)))
		}
	}

	isModerator, err := deps.Access.IsModerator(ctx, actor)
	if err != nil {
		return false, errs.Wrap(err, "check moderator role")
	}
	return isModerator, nil
}

// userFlag reads a snowflake flag. A raw mention like <@123> is accepted.
func userFlag(cmd *cobra.Command, name string) (uint64, error) {
	raw, _ := cmd.Flags().GetString(name)
	raw = strings.TrimSpace(raw)
	if ids, err := domainticket.ResolveParticipants(raw, 0); err == nil && len(ids) == 1 {
		return ids[0], nil
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errs.Newf(errs.KindValidation, "--%s must be a user id, got %q", name, raw)
	}
	return id, nil
}

func ticketIDFlag(cmd *cobra.Command) (uint64, error) {
	raw, _ := cmd.Flags().GetString("id")
	return domainticket.ParseID(raw)
}

func writeLine(cmd *cobra.Command, format string, args ...any) error {
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...); err != nil {
		return errs.Wrap(err, "write output")
	}
	return nil
}

func init() {
	ticketCmd.AddCommand(
		newTicketOpenCmd(),
		newTicketCloseCmd(),
		newTicketShowCmd(),
		newTicketListCmd("list", "List open tickets", listOpen),
		newTicketListCmd("list-all", "List all tickets", listAll),
		newTicketListCmd("orphans", "List tickets that never got a channel", listOrphans),
	)
	rootCmd.AddCommand(ticketCmd)
}
