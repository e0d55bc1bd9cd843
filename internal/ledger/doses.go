package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/schedule"
)

// Doses expands every schedule of the medicine over [from, to] in the
// owner's timezone and joins the result with the ledger.  Occurrences
// without a row are PENDING, or MISSED once their instant has passed.
// Nothing is written.
func (s *Service) Doses(ctx context.Context, userID, medicineID string, from, to time.Time) ([]model.Dose, error) {
	med, err := s.authorize(ctx, userID, medicineID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.User(ctx, med.UserID)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	rows, err := s.store.Schedules(ctx, medicineID)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	defs := make([]schedule.Definition, 0, len(rows))
	for _, row := range rows {
		def, err := schedule.FromModel(row)
		if err != nil {
			// Rows are validated on write; a bad one is skipped, not fatal.
			s.log.Warn("stored schedule invalid", zap.String("schedule_id", row.ID), zap.Error(err))
			continue
		}
		defs = append(defs, def)
	}
	loc := schedule.Location(user.Timezone, s.opts.DefaultTimezone)
	occs := schedule.GenerateAll(defs, from, to, loc)
	if len(occs) == 0 {
		return []model.Dose{}, nil
	}
	logs, err := s.store.DoseLogsInRange(ctx, medicineID, normalize(from), normalize(to))
	if err != nil {
		return nil, fmt.Errorf("list dose logs: %w", err)
	}
	return Annotate(occs, logs, s.clock.Now()), nil
}

// Annotate attaches a status to each occurrence: the ledger row's status
// when one exists, otherwise MISSED for past instants and PENDING for the
// rest.
func Annotate(occs []schedule.Occurrence, logs []model.DoseLog, now time.Time) []model.Dose {
	byKey := make(map[string]model.DoseLog, len(logs))
	for _, l := range logs {
		byKey[OccurrenceKey(l.MedicineID, l.ScheduledAt)] = l
	}
	out := make([]model.Dose, 0, len(occs))
	for _, o := range occs {
		d := model.Dose{MedicineID: o.MedicineID, ScheduledAt: o.ScheduledAt.UTC()}
		if l, ok := byKey[OccurrenceKey(o.MedicineID, o.ScheduledAt)]; ok {
			d.Status = l.Status
			d.TakenAt = l.TakenAt
		} else if o.ScheduledAt.Before(now) {
			d.Status = model.DoseMissed
		} else {
			d.Status = model.DosePending
		}
		out = append(out, d)
	}
	return out
}
