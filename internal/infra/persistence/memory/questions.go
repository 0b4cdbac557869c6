package memory

import (
	"context"
	"sort"
	"time"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

type ledgerRepo struct{ s *Store }

func ledgerKey(roomID, questionID string) string { return roomID + "/" + questionID }

func (r ledgerRepo) Select(ctx context.Context, rec *domain.RoomQuestion) (bool, error) {
	release, err := r.s.enter(ctx, "ledger.Select")
	if err != nil {
		return false, err
	}
	defer release()
	key := ledgerKey(rec.RoomID, rec.QuestionID)
	existing, ok := r.s.ledger[key]
	if ok && existing.IsAnswered {
		return false, nil
	}
	if ok {
		existing.SelectedBy = rec.SelectedBy
		existing.SelectedAt = rec.SelectedAt
		r.s.ledger[key] = existing
		return true, nil
	}
	r.s.ledger[key] = *rec
	return true, nil
}

func (r ledgerRepo) Find(ctx context.Context, roomID, questionID string) (*domain.RoomQuestion, error) {
	release, err := r.s.enter(ctx, "ledger.Find")
	if err != nil {
		return nil, err
	}
	defer release()
	rec, ok := r.s.ledger[ledgerKey(roomID, questionID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ptr(rec), nil
}

func (r ledgerRepo) ListByRoom(ctx context.Context, roomID string) ([]domain.RoomQuestion, error) {
	release, err := r.s.enter(ctx, "ledger.ListByRoom")
	if err != nil {
		return nil, err
	}
	defer release()
	out := []domain.RoomQuestion{}
	for _, rec := range r.s.ledger {
		if rec.RoomID == roomID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SelectedAt.Before(out[j].SelectedAt) })
	return out, nil
}

func (r ledgerRepo) MarkAnswered(ctx context.Context, roomID, questionID string, answeredBy *string, outcome domain.AnswerOutcome, at time.Time) (bool, error) {
	release, err := r.s.enter(ctx, "ledger.MarkAnswered")
	if err != nil {
		return false, err
	}
	defer release()
	key := ledgerKey(roomID, questionID)
	rec, ok := r.s.ledger[key]
	if !ok || rec.IsAnswered {
		return false, nil
	}
	rec.IsAnswered = true
	rec.AnsweredBy = answeredBy
	rec.Outcome = ptr(outcome)
	rec.AnsweredAt = ptr(at)
	r.s.ledger[key] = rec
	return true, nil
}

type questionRepo struct{ s *Store }

func (r questionRepo) FindByID(ctx context.Context, id string) (*domain.Question, error) {
	release, err := r.s.enter(ctx, "questions.FindByID")
	if err != nil {
		return nil, err
	}
	defer release()
	q, ok := r.s.questions[id]
	if !ok {
		return nil, repository.ErrQuestionNotFound
	}
	return ptr(q), nil
}

func (r questionRepo) ListBoard(ctx context.Context, categories []string, rowCount int) ([]domain.Question, error) {
	release, err := r.s.enter(ctx, "questions.ListBoard")
	if err != nil {
		return nil, err
	}
	defer release()
	board := []domain.Question{}
	for _, cat := range categories {
		var rows []domain.Question
		for _, q := range r.s.questions {
			if q.Category == cat {
				rows = append(rows, q)
			}
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Points == rows[j].Points {
				return rows[i].ID < rows[j].ID
			}
			return rows[i].Points < rows[j].Points
		})
		if len(rows) > rowCount {
			rows = rows[:rowCount]
		}
		board = append(board, rows...)
	}
	return board, nil
}
