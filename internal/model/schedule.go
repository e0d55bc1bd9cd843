package model

import "time"

// Schedule is a recurring dosing definition as stored in the `schedules`
// table.  A medicine may carry several schedules (for example one for
// weekdays and one for weekends); their occurrences are combined.
//
// Fields:
//  ID         – primary key identifier (uuid string).
//  MedicineID – medicine the schedule belongs to.
//  TimesOfDay – wall-clock times in HH:mm format, e.g. ["08:00","20:00"].
//  StartDate  – first calendar day the schedule applies (inclusive).
//  EndDate    – last calendar day the schedule applies (inclusive, nullable).
//  DaysOfWeek – applicable weekdays, 0=Sunday … 6=Saturday; empty means every day.
//  CreatedAt  – timestamp of creation.
type Schedule struct {
	ID         string     // schedules.id
	MedicineID string     // schedules.medicine_id
	TimesOfDay []string   // schedules.times_of_day (JSON array)
	StartDate  time.Time  // schedules.start_date
	EndDate    *time.Time // schedules.end_date (nullable)
	DaysOfWeek []int      // schedules.days_of_week (JSON array, nullable)
	CreatedAt  time.Time  // schedules.created_at
}
