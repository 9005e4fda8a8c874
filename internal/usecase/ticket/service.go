package ticket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ticketbot/internal/bootstrap/logging"
	domainticket "ticketbot/internal/domain/ticket"
	"ticketbot/internal/errs"
	"ticketbot/internal/ports"
)

const defaultProvisionTimeout = 15 * time.Second

type Options struct {
	// ProvisionTimeout bounds each chat-platform call. Zero uses 15s.
	ProvisionTimeout time.Duration
	Now              func() time.Time
}

// Service is the ticket lifecycle manager. It keeps the stored ticket, its
// channel and the channel's overwrites consistent without cross-call
// transactions: every multi-step operation reports partial completion instead
// of retrying or rolling back.
type Service struct {
	repo        ports.TicketRepository
	provisioner ports.ChannelProvisioner
	publisher   ports.EventPublisher
	timeout     time.Duration
	now         func() time.Time
}

func NewService(repo ports.TicketRepository, provisioner ports.ChannelProvisioner, publisher ports.EventPublisher, opts Options) *Service {
	timeout := opts.ProvisionTimeout
	if timeout <= 0 {
		timeout = defaultProvisionTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        repo,
		provisioner: provisioner,
		publisher:   publisher,
		timeout:     timeout,
		now:         now,
	}
}

type OpenTicketInput struct {
	Author          uint64
	Title           string
	Description     string
	RelatedMentions string
}

type OpenTicketResult struct {
	TicketID     uint64
	ChannelID    uint64
	Participants []uint64
}

type CloseTicketInput struct {
	Actor       uint64
	IsModerator bool
	TicketID    uint64
}

type CloseOutcome string

const (
	CloseClosed        CloseOutcome = "closed"
	CloseAlreadyClosed CloseOutcome = "already_closed"
	CloseNotFound      CloseOutcome = "not_found"
)

// Summary is the list view of a ticket.
type Summary struct {
	ID        uint64
	Author    uint64
	Title     string
	IsOpen    bool
	ChannelID uint64
	CreatedAt string
}

func (s *Service) ready(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return errors.New("ticket repository is required")
	}
	return nil
}

func (s *Service) logCtx(ctx context.Context, op string) context.Context {
	return logging.WithAttrs(ctx, slog.String("component", "usecase.ticket"), slog.String("op", op))
}

func (s *Service) nowUTCString() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// withProvisionTimeout derives the context for one platform call.
func (s *Service) withProvisionTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) publishBestEffort(ctx context.Context, event ports.TicketEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logging.Warn(ctx, "publish ticket event failed",
			slog.String("event_type", string(event.Type)),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

func storeErr(err error, op string) error {
	return errs.As(errs.KindStore, err, op)
}

func provisionErr(err error, op string) error {
	if errors.Is(err, errs.ErrProvision) {
		return errs.Wrap(err, op)
	}
	return errs.As(errs.KindProvision, err, op)
}

func toDomain(record ports.TicketRecord) domainticket.Ticket {
	return domainticket.Ticket{
		ID:          record.ID,
		Author:      record.Author,
		Title:       record.Title,
		Description: record.Description,
		IsOpen:      record.IsOpen,
		ChannelID:   record.ChannelID,
		CreatedAt:   record.CreatedAt,
	}
}

func toSummary(record ports.TicketRecord) Summary {
	return Summary{
		ID:        record.ID,
		Author:    record.Author,
		Title:     record.Title,
		IsOpen:    record.IsOpen,
		ChannelID: record.ChannelID,
		CreatedAt: record.CreatedAt,
	}
}
