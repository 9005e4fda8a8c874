package model

// Ticket rows keep channel_id as text: an empty string means the channel has
// not been provisioned yet.
type Ticket struct {
	ID          uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Author      string `gorm:"column:author;type:text;not null;index"`
	Title       string `gorm:"column:title;type:text;not null"`
	Description string `gorm:"column:description;type:text;not null"`
	IsOpen      bool   `gorm:"column:is_open;not null;default:true;index"`
	ChannelID   string `gorm:"column:channel_id;type:text;not null;default:'';index:idx_tickets_channel_id,unique,where:channel_id <> ''"`
	CreatedAt   string `gorm:"column:created_at;type:text;not null"`
}

func (Ticket) TableName() string {
	return "tickets"
}
