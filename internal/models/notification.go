package models

import "time"

// NotificationKind определяет тип письма и ключ маршрутизации в RabbitMQ.
type NotificationKind string

const (
	NotificationVerification NotificationKind = "verification"
	NotificationReset        NotificationKind = "reset"
	NotificationTrialEnding  NotificationKind = "trial_ending"
)

// Notification сообщение для сервиса рассылки.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Email       string           `json:"email"`
	Name        string           `json:"name"`
	Code        string           `json:"code,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	TrialEndsAt *time.Time       `json:"trial_ends_at,omitempty"`
}
