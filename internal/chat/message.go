package chat

import (
	"github.com/pitabwire/frame/data"
)

// Message is one finalized conversation turn.
type Message struct {
	data.BaseModel

	SessionID string `gorm:"type:varchar(50);not null;index:idx_messages_session" json:"session_id"`
	Role      string `gorm:"type:varchar(20);not null"                             json:"role"`
	Content   string `gorm:"type:text;not null"                                    json:"content"`
}

func (Message) TableName() string { return "messages" }
