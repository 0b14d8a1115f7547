package reports

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"restockbot/backend/internal/models"
)

// QueryHistory returns the history entries of one region (all regions when region is
// empty), sorted by location key. Entries left behind by a missed rollover are shown as
// they would look after it.
func (s *Service) QueryHistory(ctx context.Context, region string) ([]models.LocationHistory, error) {
	weekStart := s.Store.WeekStart(s.now())
	out := []models.LocationHistory{}
	err := s.Store.View(ctx, func(doc *models.Document) {
		for _, h := range doc.LocationHistory {
			if region != "" && s.Catalog.RegionOf(h.LocationKey) != region {
				continue
			}
			out = append(out, h.Normalized(weekStart))
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationKey < out[j].LocationKey })
	return out, nil
}

// MarkLocationChecked records that checkerID looked at the location. Restock dates are
// left alone.
func (s *Service) MarkLocationChecked(ctx context.Context, locationKey, checkerID string) error {
	if s.Catalog != nil {
		if _, ok := s.Catalog.Lookup(locationKey); !ok {
			return ErrUnknownLocation
		}
	}
	now := s.now()
	weekStart := s.Store.WeekStart(now)
	err := s.Store.Update(ctx, func(doc *models.Document) error {
		doc.EnsureHistory(locationKey).MarkChecked(checkerID, now, weekStart)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("location marked checked",
		slog.String("location_key", locationKey),
		slog.String("checker_id", checkerID),
	)
	return nil
}

// WeeklyRecap builds one recap per catalog region for the week containing now.
func (s *Service) WeeklyRecap(ctx context.Context, now time.Time) ([]RegionRecap, error) {
	weekStart := s.Store.WeekStart(now)
	current := make(map[string]*time.Time)
	err := s.Store.View(ctx, func(doc *models.Document) {
		for _, h := range doc.LocationHistory {
			n := h.Normalized(weekStart)
			current[h.LocationKey] = n.CurrentWeek
		}
	})
	if err != nil {
		return nil, err
	}

	var recaps []RegionRecap
	for _, region := range s.Catalog.Regions() {
		recap := RegionRecap{
			Region:       region,
			WeekStart:    weekStart,
			Restocked:    []RecapEntry{},
			NotRestocked: []models.Location{},
		}
		for _, loc := range s.Catalog.InRegion(region) {
			if at := current[loc.Key]; at != nil {
				recap.Restocked = append(recap.Restocked, RecapEntry{Location: loc, At: *at})
			} else {
				recap.NotRestocked = append(recap.NotRestocked, loc)
			}
		}
		sort.SliceStable(recap.Restocked, func(i, j int) bool {
			return recap.Restocked[i].At.Before(recap.Restocked[j].At)
		})
		recaps = append(recaps, recap)
	}
	return recaps, nil
}

// GetReport returns a copy of the report with id.
func (s *Service) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var out *models.Report
	err := s.Store.View(ctx, func(doc *models.Document) {
		if r := doc.FindReport(id); r != nil {
			cp := *r
			out = &cp
		}
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrReportNotFound
	}
	return out, nil
}

// PendingReports returns copies of every pending report, oldest first.
func (s *Service) PendingReports(ctx context.Context) ([]models.Report, error) {
	out := []models.Report{}
	err := s.Store.View(ctx, func(doc *models.Document) {
		for _, r := range doc.Reports {
			if r.IsPending() {
				out = append(out, *r)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
