package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	professionalRepo "quickconnect/database/repository/professional"
	sessionRepo "quickconnect/database/repository/session"
	"quickconnect/models"
	"quickconnect/services/notification"

	"github.com/hibiken/asynq"
)

type stubProRepo struct {
	pro   *models.Professional
	saved *models.Stats
}

func (s *stubProRepo) Create(*models.Professional) error { return errors.New("not implemented") }
func (s *stubProRepo) Update(*models.Professional) error { return errors.New("not implemented") }

func (s *stubProRepo) GetByID(id string) (*models.Professional, error) {
	if s.pro == nil || s.pro.ID != id {
		return nil, errors.New("not found")
	}
	out := *s.pro
	return &out, nil
}

func (s *stubProRepo) GetAll() ([]models.Professional, error) { return nil, nil }

func (s *stubProRepo) GetApprovedByCategory(string) ([]models.Professional, error) {
	return nil, nil
}

func (s *stubProRepo) Search(professionalRepo.SearchFilters) ([]models.Professional, error) {
	return nil, nil
}

func (s *stubProRepo) SaveLiveState(string, models.LiveState) error { return nil }

func (s *stubProRepo) SaveStats(id string, stats models.Stats) error {
	s.saved = &stats
	return nil
}

type stubSessRepo struct {
	agg sessionRepo.CompletionStats
}

func (s *stubSessRepo) Insert(*models.Session) error { return nil }
func (s *stubSessRepo) Update(*models.Session) error { return nil }

func (s *stubSessRepo) GetByID(string) (*models.Session, error) {
	return nil, errors.New("not found")
}

func (s *stubSessRepo) GetActiveByPair(string, string) (*models.Session, error) {
	return nil, nil
}

func (s *stubSessRepo) CompletionStatsFor(string) (sessionRepo.CompletionStats, error) {
	return s.agg, nil
}

func (s *stubSessRepo) SaveMessage(*models.ChatMessage) error { return nil }

func recomputeTask(t *testing.T, professionalID string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(models.RecomputePayload{ProfessionalID: professionalID})
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(notification.TypeRecomputeStats, payload)
}

func TestRecomputeDerivesRates(t *testing.T) {
	pros := &stubProRepo{pro: &models.Professional{ID: "pro-1"}}
	sessions := &stubSessRepo{agg: sessionRepo.CompletionStats{
		Total: 4, Completed: 3, CompletedClean: 2, Rated: 2, RatingSum: 9,
	}}

	handler := handleRecomputeTask(pros, sessions)
	if err := handler(context.Background(), recomputeTask(t, "pro-1")); err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if pros.saved == nil {
		t.Fatal("stats were not saved")
	}
	got := *pros.saved
	if got.TotalSessions != 4 || got.TotalReviews != 2 {
		t.Fatalf("wrong totals: %+v", got)
	}
	if got.AverageRating != 4.5 {
		t.Fatalf("expected rating 4.5, got %v", got.AverageRating)
	}
	if got.CompletionRate != 75 {
		t.Fatalf("expected completion rate 75, got %v", got.CompletionRate)
	}
	// One of three completions carried call issues, so success drops below
	// the completion rate.
	if got.SuccessRate != 66.67 {
		t.Fatalf("expected success rate 66.67, got %v", got.SuccessRate)
	}
}

func TestRecomputeAllCleanCompletions(t *testing.T) {
	pros := &stubProRepo{pro: &models.Professional{ID: "pro-1"}}
	sessions := &stubSessRepo{agg: sessionRepo.CompletionStats{
		Total: 2, Completed: 2, CompletedClean: 2,
	}}

	handler := handleRecomputeTask(pros, sessions)
	if err := handler(context.Background(), recomputeTask(t, "pro-1")); err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if pros.saved == nil {
		t.Fatal("stats were not saved")
	}
	if pros.saved.SuccessRate != 100 || pros.saved.CompletionRate != 100 {
		t.Fatalf("clean record should score 100/100: %+v", *pros.saved)
	}
	// No ratings yet: the stored average stays untouched.
	if pros.saved.AverageRating != 0 || pros.saved.TotalReviews != 0 {
		t.Fatalf("unexpected rating fields: %+v", *pros.saved)
	}
}

func TestRecomputeUnknownProfessional(t *testing.T) {
	pros := &stubProRepo{}
	sessions := &stubSessRepo{}

	handler := handleRecomputeTask(pros, sessions)
	if err := handler(context.Background(), recomputeTask(t, "ghost")); err == nil {
		t.Fatal("unknown professional must surface an error for retry")
	}
}
