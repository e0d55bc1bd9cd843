package model

import "time"

// User represents the subset of a `users` row the reminder engine reads.
// Profile editing lives elsewhere; these fields are consumed read-only by
// the dispatch handlers when deciding whether and when to notify.
//
// Fields:
//  ID              – primary key identifier (uuid string).
//  Email           – address notifications are delivered to.
//  FullName        – display name used in email greetings.
//  Timezone        – IANA zone name; empty means the configured default.
//  EmailEnabled    – master switch for all email notifications.
//  QuietHoursStart – optional HH:mm start of the suppression window.
//  QuietHoursEnd   – optional HH:mm end of the suppression window.
//  CreatedAt       – timestamp of creation.
//  UpdatedAt       – timestamp of last update.
type User struct {
	ID              string    // users.id
	Email           string    // users.email
	FullName        string    // users.full_name
	Timezone        string    // users.timezone
	EmailEnabled    bool      // users.email_enabled
	QuietHoursStart *string   // users.quiet_hours_start (nullable)
	QuietHoursEnd   *string   // users.quiet_hours_end (nullable)
	CreatedAt       time.Time // users.created_at
	UpdatedAt       time.Time // users.updated_at
}
