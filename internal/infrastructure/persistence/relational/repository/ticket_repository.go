package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"ticketbot/internal/errs"
	"ticketbot/internal/infrastructure/persistence/relational/model"
	"ticketbot/internal/ports"
)

type TicketRepository struct {
	db *gorm.DB
}

var _ ports.TicketRepository = (*TicketRepository)(nil)

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

func (r *TicketRepository) conn(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if r.db == nil {
		return nil, errors.New("ticket repository database is required")
	}
	return r.db.WithContext(ctx), nil
}

func (r *TicketRepository) Insert(ctx context.Context, input ports.TicketInsert) (ports.TicketRecord, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return ports.TicketRecord{}, err
	}

	row := model.Ticket{
		Author:      formatSnowflake(input.Author),
		Title:       input.Title,
		Description: input.Description,
		IsOpen:      true,
		ChannelID:   "",
		CreatedAt:   input.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.TicketRecord{}, errs.Wrap(errs.WithStack(err), "insert ticket")
	}
	return mapTicket(row)
}

func (r *TicketRepository) SetChannelID(ctx context.Context, ticketID uint64, channelID uint64) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if channelID == 0 {
		return errors.New("channel id is required")
	}

	channel := formatSnowflake(channelID)
	result := db.Model(&model.Ticket{}).
		Where("id = ? AND channel_id = ? AND is_open = ?", ticketID, "", true).
		Update("channel_id", channel)
	if result.Error != nil {
		return errs.Wrap(errs.WithStack(result.Error), "update ticket channel_id")
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// is_open never goes back to true, so a row that matches without the
	// open condition was closed while its channel was being created.
	result = db.Model(&model.Ticket{}).
		Where("id = ? AND channel_id = ?", ticketID, "").
		Update("channel_id", channel)
	if result.Error != nil {
		return errs.Wrap(errs.WithStack(result.Error), "update closed ticket channel_id")
	}
	if result.RowsAffected > 0 {
		return ports.ErrTicketClosed
	}

	if _, err := r.GetByID(ctx, ticketID); err != nil {
		return err
	}
	return ports.ErrChannelAlreadySet
}

func (r *TicketRepository) CloseIfOpen(ctx context.Context, ticketID uint64) (int64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}

	result := db.Model(&model.Ticket{}).
		Where("id = ? AND is_open = ?", ticketID, true).
		Update("is_open", false)
	if result.Error != nil {
		return 0, errs.Wrap(errs.WithStack(result.Error), "close ticket")
	}
	return result.RowsAffected, nil
}

func (r *TicketRepository) GetByID(ctx context.Context, ticketID uint64) (ports.TicketRecord, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return ports.TicketRecord{}, err
	}

	var row model.Ticket
	if err := db.Where("id = ?", ticketID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.TicketRecord{}, ports.ErrTicketNotFound
		}
		return ports.TicketRecord{}, errs.Wrap(errs.WithStack(err), "query ticket")
	}
	return mapTicket(row)
}

func (r *TicketRepository) List(ctx context.Context, openOnly bool) ([]ports.TicketRecord, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Ticket{})
	if openOnly {
		query = query.Where("is_open = ?", true)
	}
	return findTickets(query, "query tickets")
}

func (r *TicketRepository) ListOrphans(ctx context.Context) ([]ports.TicketRecord, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	return findTickets(db.Model(&model.Ticket{}).Where("channel_id = ?", ""), "query orphaned tickets")
}

func findTickets(query *gorm.DB, op string) ([]ports.TicketRecord, error) {
	var rows []model.Ticket
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.WithStack(err), op)
	}

	items := make([]ports.TicketRecord, 0, len(rows))
	for _, row := range rows {
		item, err := mapTicket(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func mapTicket(row model.Ticket) (ports.TicketRecord, error) {
	author, err := parseSnowflake(row.Author)
	if err != nil {
		return ports.TicketRecord{}, fmt.Errorf("ticket %d: invalid author %q: %w", row.ID, row.Author, err)
	}
	channelID, err := parseSnowflake(row.ChannelID)
	if err != nil {
		return ports.TicketRecord{}, fmt.Errorf("ticket %d: invalid channel_id %q: %w", row.ID, row.ChannelID, err)
	}

	return ports.TicketRecord{
		ID:          row.ID,
		Author:      author,
		Title:       row.Title,
		Description: row.Description,
		IsOpen:      row.IsOpen,
		ChannelID:   channelID,
		CreatedAt:   row.CreatedAt,
	}, nil
}

func formatSnowflake(id uint64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(id, 10)
}

// parseSnowflake treats "" and "0" as unset.
func parseSnowflake(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
