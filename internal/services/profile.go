package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/store"
)

// ProfileStatistics aggregates a user's typing career.
type ProfileStatistics struct {
	TotalGames int     `json:"total_games"`
	WPMBest    float64 `json:"wpm_best"`
	WPMAvg10   float64 `json:"wpm_avg_10"`
	WPMAvgAll  float64 `json:"wpm_avg_all"`
	AccBest    float64 `json:"acc_best"`
	AccAvg10   float64 `json:"acc_avg_10"`
	AccAvgAll  float64 `json:"acc_avg_all"`
}

// ProfileHistory is one page of past games, newest first.
type ProfileHistory struct {
	Total       int                 `json:"total"`
	HasPrevPage bool                `json:"has_prev_page"`
	HasNextPage bool                `json:"has_next_page"`
	Data        []store.HistoryItem `json:"data"`
}

type ProfileService struct {
	results ResultStore
	log     *logrus.Logger
}

func NewProfileService(results ResultStore, log *logrus.Logger) *ProfileService {
	return &ProfileService{results: results, log: log}
}

// Statistics returns career aggregates. Users without results (guests
// included) get zeroes.
func (s *ProfileService) Statistics(ctx context.Context, userID string) (*ProfileStatistics, error) {
	total, err := s.results.TotalGames(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &ProfileStatistics{TotalGames: total}

	best, err := s.results.Best(ctx, userID)
	if err != nil {
		return nil, err
	}
	if best != nil {
		stats.WPMBest = best.WPMCorrect
		stats.AccBest = best.Accuracy
	}

	avg10, err := s.results.AvgLastN(ctx, userID, 10)
	if err != nil {
		return nil, err
	}
	stats.WPMAvg10 = avg10.WPM
	stats.AccAvg10 = avg10.Acc

	avgAll, err := s.results.AvgLastN(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	stats.WPMAvgAll = avgAll.WPM
	stats.AccAvgAll = avgAll.Acc

	return stats, nil
}

// Graph returns the most recent results for the progress chart.
func (s *ProfileService) Graph(ctx context.Context, userID string, size int) ([]store.HistoryItem, error) {
	return s.results.History(ctx, userID, 1, size)
}

// History pages through past games.
func (s *ProfileService) History(ctx context.Context, userID string, page, size int) (*ProfileHistory, error) {
	total, err := s.results.TotalGames(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.results.History(ctx, userID, page, size)
	if err != nil {
		return nil, err
	}
	return &ProfileHistory{
		Total:       total,
		HasPrevPage: page > 1,
		HasNextPage: total > page*size,
		Data:        items,
	}, nil
}
