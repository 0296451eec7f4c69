package service

import (
	"context"
	"strings"

	"recruitoj/internal/contest/model"
	appErr "recruitoj/pkg/errors"
)

// ListSubmissions returns the user's non-deleted submissions, newest first,
// optionally narrowed to one problem.
func (s *ContestService) ListSubmissions(ctx context.Context, userID string, problemID *int) ([]model.Submission, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErr.ValidationError("user_id", "required")
	}
	if problemID != nil && *problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "invalid")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	list, err := s.submissionRepo.ListByUser(ctxDB.ctx, userID, problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	if list == nil {
		list = []model.Submission{}
	}
	return list, nil
}

// GetScore returns the user's cumulative score and solved problems.
func (s *ContestService) GetScore(ctx context.Context, userID string) (model.Score, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Score{}, appErr.ValidationError("user_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	score, err := s.submissionRepo.GetScore(ctxDB.ctx, userID)
	if err != nil {
		return model.Score{}, appErr.Wrapf(err, appErr.DatabaseError, "get score failed")
	}
	return score, nil
}
