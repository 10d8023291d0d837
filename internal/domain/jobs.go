package domain

import "time"

// MirrorJobSource описывает источник отметки.
type MirrorJobSource string

const (
	// MirrorSourceCommand — отметка командой бота.
	MirrorSourceCommand MirrorJobSource = "command"
	// MirrorSourceCallback — отметка кнопкой под напоминанием.
	MirrorSourceCallback MirrorJobSource = "callback"
)

// MirrorJob — задание на отражение отметки во внешних системах.
type MirrorJob struct {
	ID         string          `json:"job_id"`
	TGUserID   int64           `json:"tg_user_id"`
	Action     Action          `json:"action"`
	At         time.Time       `json:"at"`
	Source     MirrorJobSource `json:"source"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
