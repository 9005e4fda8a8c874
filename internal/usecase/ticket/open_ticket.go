package ticket

import (
	"context"
	"errors"
	"log/slog"

	"ticketbot/internal/bootstrap/logging"
	domainticket "ticketbot/internal/domain/ticket"
	"ticketbot/internal/errs"
	"ticketbot/internal/ports"
)

// OpenTicket stores a new ticket, provisions its private channel and records
// the channel on the ticket. A failure after the insert returns the ticket id
// alongside the error so the orphaned record can be found.
func (s *Service) OpenTicket(ctx context.Context, input OpenTicketInput) (OpenTicketResult, error) {
	if err := s.ready(ctx); err != nil {
		return OpenTicketResult{}, err
	}
	if s.provisioner == nil {
		return OpenTicketResult{}, errors.New("channel provisioner is required")
	}
	ctx = s.logCtx(ctx, "open")

	if input.Author == 0 {
		return OpenTicketResult{}, domainticket.ErrAuthorRequired
	}
	title := domainticket.CleanText(input.Title)
	if title == "" {
		return OpenTicketResult{}, domainticket.ErrTitleRequired
	}
	description := domainticket.CleanText(input.Description)

	participants, err := domainticket.ResolveParticipants(input.RelatedMentions, input.Author)
	if err != nil {
		return OpenTicketResult{}, err
	}

	record, err := s.repo.Insert(ctx, ports.TicketInsert{
		Author:      input.Author,
		Title:       title,
		Description: description,
		CreatedAt:   s.nowUTCString(),
	})
	if err != nil {
		logging.Error(ctx, "insert ticket failed", slog.Any("err", errs.Loggable(err)))
		return OpenTicketResult{}, storeErr(err, "insert ticket")
	}

	t := toDomain(record)
	ctx = logging.WithTicket(ctx, t.ID)
	result := OpenTicketResult{TicketID: t.ID, Participants: participants}

	createCtx, cancel := s.withProvisionTimeout(ctx)
	channelID, err := s.provisioner.Create(
		createCtx,
		domainticket.ChannelName(t.ID, t.Title),
		domainticket.CategoryOpen,
		domainticket.OpenOverwrites(t.Author, participants),
	)
	cancel()
	if err == nil && channelID == 0 {
		err = errors.New("provisioner returned empty channel id")
	}
	if err != nil {
		logging.Error(ctx, "ticket left without channel", slog.Any("err", errs.Loggable(err)))
		return result, provisionErr(err, "create ticket channel")
	}
	result.ChannelID = channelID
	t.ChannelID = channelID

	if err := s.repo.SetChannelID(ctx, t.ID, channelID); err != nil {
		if errors.Is(err, ports.ErrTicketClosed) {
			return result, s.restrictClosedDuringOpen(ctx, t.ID, channelID)
		}
		logging.Error(ctx, "record ticket channel failed",
			slog.Uint64("channel_id", channelID),
			slog.Any("err", errs.Loggable(err)),
		)
		return result, storeErr(err, "record ticket channel")
	}

	postCtx, cancel := s.withProvisionTimeout(ctx)
	err = s.provisioner.Post(postCtx, channelID, ports.ChannelMessage{
		Content:           domainticket.Summary(t, participants),
		MentionModerators: true,
	})
	cancel()
	if err != nil {
		logging.Warn(ctx, "post ticket summary failed", slog.Any("err", errs.Loggable(err)))
	}

	s.publishBestEffort(ctx, ports.TicketEvent{
		Type:       ports.TicketOpened,
		TicketID:   t.ID,
		ChannelID:  channelID,
		Actor:      t.Author,
		OccurredAt: s.nowUTCString(),
	})

	logging.Info(ctx, "ticket opened",
		slog.Uint64("author", t.Author),
		slog.Uint64("channel_id", channelID),
		slog.Int("participants", len(participants)),
	)
	return result, nil
}

// restrictClosedDuringOpen handles a close that committed while the channel
// was being created. The new channel was made with member overwrites, so it
// gets the closed overwrites before the inconsistency is reported.
func (s *Service) restrictClosedDuringOpen(ctx context.Context, ticketID uint64, channelID uint64) error {
	logging.Error(ctx, "ticket closed while its channel was created", slog.Uint64("channel_id", channelID))

	editCtx, cancel := s.withProvisionTimeout(ctx)
	err := s.provisioner.EditPermissionsAndCategory(
		editCtx,
		channelID,
		domainticket.CategoryClosed,
		domainticket.ClosedOverwrites(),
	)
	cancel()
	if err != nil {
		logging.Error(ctx, "restrict channel of closed ticket failed",
			slog.Uint64("channel_id", channelID),
			slog.Any("err", errs.Loggable(err)),
		)
		return errs.As(errs.KindInconsistentState, provisionErr(err, "restrict ticket channel"),
			"ticket "+domainticket.FormatRef(ticketID)+" was closed while its channel was created")
	}
	return errs.Newf(errs.KindInconsistentState,
		"ticket %s was closed while its channel was created; channel restricted to moderators", domainticket.FormatRef(ticketID))
}
