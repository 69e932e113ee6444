package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"intrabot/internal/market"
	"intrabot/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FetchBars returns the bars of instrument with start <= time <= end, oldest first.
func (s *SqliteStore) FetchBars(ctx context.Context, instrument string, start, end time.Time) ([]market.Bar, error) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	var rows []model.BarModel
	if err := s.db.WithContext(ctx).
		Where("instrument = ? AND ts >= ? AND ts <= ?", instrument, start.Unix(), end.Unix()).
		Order("ts ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]market.Bar, 0, len(rows))
	for _, r := range rows {
		out = append(out, market.Bar{
			Instrument: r.Instrument,
			Time:       time.Unix(r.TS, 0).In(s.loc),
			Open:       r.Open,
			High:       r.High,
			Low:        r.Low,
			Close:      r.Close,
			Volume:     r.Volume,
		})
	}
	return out, nil
}

// AppendBar inserts bar; an existing (instrument, time) row is kept as is.
func (s *SqliteStore) AppendBar(ctx context.Context, instrument string, bar market.Bar) error {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if instrument == "" {
		return errors.New("instrument cannot be empty")
	}
	row := model.BarModel{
		Instrument: instrument,
		TS:         bar.Time.Unix(),
		Open:       bar.Open,
		High:       bar.High,
		Low:        bar.Low,
		Close:      bar.Close,
		Volume:     bar.Volume,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument"}, {Name: "ts"}},
		DoNothing: true,
	}).Create(&row).Error
}

func (s *SqliteStore) LastTimestamp(ctx context.Context, instrument string) (time.Time, bool, error) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	var row model.BarModel
	err := s.db.WithContext(ctx).
		Where("instrument = ?", instrument).
		Order("ts DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(row.TS, 0).In(s.loc), true, nil
}

// OnBarClosed persists live bars coming from the aggregator.
func (s *SqliteStore) OnBarClosed(bar market.Bar) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.AppendBar(ctx, bar.Instrument, bar); err != nil {
		logBarError(bar, err)
	}
}
