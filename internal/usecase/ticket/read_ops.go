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

// ShowTicket returns a ticket to its author. Everyone else, moderators
// included, gets a forbidden error.
func (s *Service) ShowTicket(ctx context.Context, requester uint64, ticketID uint64) (domainticket.Ticket, error) {
	if err := s.ready(ctx); err != nil {
		return domainticket.Ticket{}, err
	}
	ctx = logging.WithTicket(s.logCtx(ctx, "show"), ticketID)

	if requester == 0 {
		return domainticket.Ticket{}, domainticket.ErrAuthorRequired
	}
	if ticketID == 0 {
		return domainticket.Ticket{}, domainticket.ErrTicketIDRequired
	}

	record, err := s.repo.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ports.ErrTicketNotFound) {
			return domainticket.Ticket{}, errs.Newf(errs.KindNotFound, "ticket %s not found", domainticket.FormatRef(ticketID))
		}
		return domainticket.Ticket{}, storeErr(err, "load ticket")
	}

	if record.Author != requester {
		logging.Warn(ctx, "show rejected for non-author", slog.Uint64("requester", requester))
		return domainticket.Ticket{}, errs.Newf(errs.KindForbidden, "ticket %s belongs to another member", domainticket.FormatRef(ticketID))
	}

	t := toDomain(record)
	if t.Orphaned() {
		logging.Error(ctx, "ticket has no channel")
		return domainticket.Ticket{}, errs.Newf(errs.KindInconsistentState, "ticket %s has no channel", t.Ref())
	}
	return t, nil
}

// ListOpenTickets returns open tickets in ascending id order.
func (s *Service) ListOpenTickets(ctx context.Context, isModerator bool) ([]Summary, error) {
	return s.list(s.logCtx(ctx, "list_open"), isModerator, true)
}

// ListAllTickets returns every provisioned ticket in ascending id order.
func (s *Service) ListAllTickets(ctx context.Context, isModerator bool) ([]Summary, error) {
	return s.list(s.logCtx(ctx, "list_all"), isModerator, false)
}

// ListOrphanedTickets returns tickets whose channel was never recorded.
// A ticket being opened concurrently shows up here until its channel is set.
func (s *Service) ListOrphanedTickets(ctx context.Context, isModerator bool) ([]Summary, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if !isModerator {
		return nil, errModeratorRequired
	}

	records, err := s.repo.ListOrphans(ctx)
	if err != nil {
		return nil, storeErr(err, "list orphaned tickets")
	}

	items := make([]Summary, 0, len(records))
	for _, record := range records {
		items = append(items, toSummary(record))
	}
	return items, nil
}

func (s *Service) list(ctx context.Context, isModerator bool, openOnly bool) ([]Summary, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if !isModerator {
		return nil, errModeratorRequired
	}

	records, err := s.repo.List(ctx, openOnly)
	if err != nil {
		return nil, storeErr(err, "list tickets")
	}

	items := make([]Summary, 0, len(records))
	skipped := 0
	for _, record := range records {
		if record.ChannelID == 0 {
			skipped++
			continue
		}
		items = append(items, toSummary(record))
	}
	if skipped > 0 {
		logging.Warn(ctx, "orphaned tickets left out of list", slog.Int("count", skipped))
	}
	return items, nil
}
