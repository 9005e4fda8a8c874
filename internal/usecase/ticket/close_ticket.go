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

var errModeratorRequired = errs.New(errs.KindUnauthorized, "moderator role is required")

// CloseTicket closes an open ticket and restricts its channel to moderators.
//
// The store's conditional update decides the race between concurrent closes;
// only the winner touches the channel. Once that update commits the ticket
// stays closed: a later failure returns CloseClosed together with the error.
func (s *Service) CloseTicket(ctx context.Context, input CloseTicketInput) (CloseOutcome, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	if s.provisioner == nil {
		return "", errors.New("channel provisioner is required")
	}
	ctx = logging.WithTicket(s.logCtx(ctx, "close"), input.TicketID)

	if !input.IsModerator {
		logging.Warn(ctx, "close rejected for non-moderator", slog.Uint64("actor", input.Actor))
		return "", errModeratorRequired
	}
	if input.TicketID == 0 {
		return "", domainticket.ErrTicketIDRequired
	}

	affected, err := s.repo.CloseIfOpen(ctx, input.TicketID)
	if err != nil {
		return "", storeErr(err, "close ticket")
	}
	if affected == 0 {
		return s.explainNoop(ctx, input.TicketID)
	}

	record, err := s.repo.GetByID(ctx, input.TicketID)
	if err != nil {
		return CloseClosed, storeErr(err, "load closed ticket")
	}
	if record.ChannelID == 0 {
		logging.Error(ctx, "closed ticket has no channel")
		return CloseClosed, errs.Newf(errs.KindInconsistentState,
			"ticket %s is closed but its channel was never recorded", domainticket.FormatRef(record.ID))
	}

	editCtx, cancel := s.withProvisionTimeout(ctx)
	err = s.provisioner.EditPermissionsAndCategory(
		editCtx,
		record.ChannelID,
		domainticket.CategoryClosed,
		domainticket.ClosedOverwrites(),
	)
	cancel()
	if err != nil {
		logging.Error(ctx, "restrict closed ticket channel failed",
			slog.Uint64("channel_id", record.ChannelID),
			slog.Any("err", errs.Loggable(err)),
		)
		return CloseClosed, provisionErr(err, "restrict ticket channel")
	}

	s.publishBestEffort(ctx, ports.TicketEvent{
		Type:       ports.TicketClosed,
		TicketID:   record.ID,
		ChannelID:  record.ChannelID,
		Actor:      input.Actor,
		OccurredAt: s.nowUTCString(),
	})

	logging.Info(ctx, "ticket closed", slog.Uint64("actor", input.Actor), slog.Uint64("channel_id", record.ChannelID))
	return CloseClosed, nil
}

// explainNoop tells an unknown ticket from one that is already closed.
func (s *Service) explainNoop(ctx context.Context, ticketID uint64) (CloseOutcome, error) {
	if _, err := s.repo.GetByID(ctx, ticketID); err != nil {
		if errors.Is(err, ports.ErrTicketNotFound) {
			logging.Warn(ctx, "close requested for unknown ticket")
			return CloseNotFound, nil
		}
		return "", storeErr(err, "load ticket")
	}
	logging.Info(ctx, "ticket already closed")
	return CloseAlreadyClosed, nil
}
