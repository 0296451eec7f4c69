package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recruitoj/internal/common/cache"
	"recruitoj/internal/common/db"
	"recruitoj/internal/contest/model"
)

const (
	defaultListCacheTTL      = 2 * time.Minute
	defaultListCacheEmptyTTL = 30 * time.Second
	listCacheKeyPrefix       = "contest:submissions:user:"
)

// ErrNotPending is returned when a terminal write finds no PENDING row.
var ErrNotPending = errors.New("submission is no longer pending")

// Outcome is the terminal state written for a judged submission.
type Outcome struct {
	SubmissionID string
	UserID       string
	ProblemID    int
	Status       model.SubmissionStatus
	PassedCount  int
	TotalCount   int
}

// SubmissionRepository persists submissions and the score ledger.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *model.Submission) error
	// Finalize writes a terminal ACCEPTED or REJECTED status. For ACCEPTED it also
	// records the solve and bumps the score in the same transaction; scored is
	// false when the (user, problem) pair was already solved.
	Finalize(ctx context.Context, outcome Outcome) (scored bool, err error)
	MarkError(ctx context.Context, userID, submissionID, reason string) error
	ListByUser(ctx context.Context, userID string, problemID *int) ([]model.Submission, error)
	GetScore(ctx context.Context, userID string) (model.Score, error)
}

// SQLSubmissionRepository implements SubmissionRepository on MySQL or PostgreSQL.
type SQLSubmissionRepository struct {
	dbProvider db.Provider
	cache      cache.Cache
	ttl        time.Duration
	emptyTTL   time.Duration
}

// NewSubmissionRepository creates a repository. cacheClient may be nil.
func NewSubmissionRepository(provider db.Provider, cacheClient cache.Cache) *SQLSubmissionRepository {
	return NewSubmissionRepositoryWithTTL(provider, cacheClient, defaultListCacheTTL, defaultListCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a repository with custom list cache TTLs.
func NewSubmissionRepositoryWithTTL(provider db.Provider, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *SQLSubmissionRepository {
	if ttl <= 0 {
		ttl = defaultListCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultListCacheEmptyTTL
	}
	return &SQLSubmissionRepository{
		dbProvider: provider,
		cache:      cacheClient,
		ttl:        ttl,
		emptyTTL:   emptyTTL,
	}
}

const submissionColumns = "id, user_id, problem_id, source_code, language_id, status, passed_count, total_count, source_key, error_message, created_at, updated_at"

// Create inserts a PENDING submission.
func (r *SQLSubmissionRepository) Create(ctx context.Context, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}
	if submission.UserID == "" {
		return errors.New("user id is required")
	}
	database, err := db.CurrentDatabase(r.dbProvider)
	if err != nil {
		return err
	}
	now := time.Now()
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = submission.CreatedAt
	if submission.Status == "" {
		submission.Status = model.StatusPending
	}

	query := `
		INSERT INTO contest_submissions
		(id, user_id, problem_id, source_code, language_id, status, passed_count, total_count, source_key, error_message, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = database.Exec(
		ctx,
		query,
		submission.ID,
		submission.UserID,
		submission.ProblemID,
		submission.SourceCode,
		submission.LanguageID,
		string(submission.Status),
		submission.PassedCount,
		submission.TotalCount,
		submission.SourceKey,
		submission.ErrorMessage,
		false,
		submission.CreatedAt,
		submission.UpdatedAt,
	)
	if err != nil {
		return err
	}
	r.invalidate(ctx, submission.UserID)
	return nil
}

// Finalize moves a PENDING submission to its judged status.
func (r *SQLSubmissionRepository) Finalize(ctx context.Context, outcome Outcome) (bool, error) {
	if outcome.Status != model.StatusAccepted && outcome.Status != model.StatusRejected {
		return false, fmt.Errorf("finalize with non-judged status %q", outcome.Status)
	}
	database, err := db.CurrentDatabase(r.dbProvider)
	if err != nil {
		return false, err
	}

	scored := false
	err = database.Transaction(ctx, func(tx db.Transaction) error {
		now := time.Now()
		result, err := tx.Exec(ctx, `
			UPDATE contest_submissions
			SET status = ?, passed_count = ?, total_count = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`, string(outcome.Status), outcome.PassedCount, outcome.TotalCount, now, outcome.SubmissionID, string(model.StatusPending))
		if err != nil {
			return err
		}
		if err := requireAffected(result); err != nil {
			return err
		}
		if outcome.Status != model.StatusAccepted {
			return nil
		}

		solved, err := recordSolve(ctx, tx, outcome, now)
		if err != nil || !solved {
			return err
		}
		if err := incrementScore(ctx, tx, outcome.UserID, now); err != nil {
			return err
		}
		scored = true
		return nil
	})
	if err != nil {
		return false, err
	}
	r.invalidate(ctx, outcome.UserID)
	return scored, nil
}

// recordSolve inserts the (user, problem) solve row. A duplicate key means the
// problem was already scored and is rolled back to the savepoint.
func recordSolve(ctx context.Context, tx db.Transaction, outcome Outcome, now time.Time) (bool, error) {
	if _, err := tx.Exec(ctx, "SAVEPOINT record_solve"); err != nil {
		return false, err
	}
	_, err := tx.Exec(ctx,
		"INSERT INTO contest_solves (user_id, problem_id, submission_id, solved_at) VALUES (?, ?, ?, ?)",
		outcome.UserID, outcome.ProblemID, outcome.SubmissionID, now)
	if err == nil {
		return true, nil
	}
	if _, dup := db.UniqueViolation(err); !dup {
		return false, err
	}
	if _, err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT record_solve"); err != nil {
		return false, err
	}
	return false, nil
}

func incrementScore(ctx context.Context, tx db.Transaction, userID string, now time.Time) error {
	const bump = "UPDATE contest_scores SET score = score + 1, updated_at = ? WHERE user_id = ?"
	result, err := tx.Exec(ctx, bump, now, userID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil || n > 0 {
		return err
	}

	// First solve for this user.
	if _, err := tx.Exec(ctx, "SAVEPOINT create_score"); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "INSERT INTO contest_scores (user_id, score, updated_at) VALUES (?, ?, ?)", userID, 1, now)
	if err == nil {
		return nil
	}
	if _, dup := db.UniqueViolation(err); !dup {
		return err
	}
	// A concurrent first solve created the row.
	if _, err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT create_score"); err != nil {
		return err
	}
	result, err = tx.Exec(ctx, bump, now, userID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// MarkError moves a PENDING submission to ERROR.
func (r *SQLSubmissionRepository) MarkError(ctx context.Context, userID, submissionID, reason string) error {
	database, err := db.CurrentDatabase(r.dbProvider)
	if err != nil {
		return err
	}
	result, err := database.Exec(ctx, `
		UPDATE contest_submissions
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(model.StatusError), reason, time.Now(), submissionID, string(model.StatusPending))
	if err != nil {
		return err
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	r.invalidate(ctx, userID)
	return nil
}

// ListByUser returns non-deleted submissions newest first. The unfiltered list is cached.
func (r *SQLSubmissionRepository) ListByUser(ctx context.Context, userID string, problemID *int) ([]model.Submission, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if r.cache == nil || problemID != nil {
		return r.listFromDB(ctx, userID, problemID)
	}
	return cache.GetWithCached[[]model.Submission](
		ctx,
		r.cache,
		listCacheKey(userID),
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(list []model.Submission) bool { return len(list) == 0 },
		marshalSubmissions,
		unmarshalSubmissions,
		func(ctx context.Context) ([]model.Submission, error) {
			return r.listFromDB(ctx, userID, nil)
		},
	)
}

func (r *SQLSubmissionRepository) listFromDB(ctx context.Context, userID string, problemID *int) ([]model.Submission, error) {
	database, err := db.CurrentDatabase(r.dbProvider)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + submissionColumns + " FROM contest_submissions WHERE user_id = ? AND is_deleted = ?"
	args := []interface{}{userID, false}
	if problemID != nil {
		query += " AND problem_id = ?"
		args = append(args, *problemID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := database.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Submission
	for rows.Next() {
		var (
			s            model.Submission
			status       string
			sourceKey    *string
			errorMessage *string
		)
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.ProblemID,
			&s.SourceCode,
			&s.LanguageID,
			&status,
			&s.PassedCount,
			&s.TotalCount,
			&sourceKey,
			&errorMessage,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		s.Status = model.SubmissionStatus(status)
		if sourceKey != nil {
			s.SourceKey = *sourceKey
		}
		if errorMessage != nil {
			s.ErrorMessage = *errorMessage
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// GetScore reads the ledger for one user. Users without a row score zero.
func (r *SQLSubmissionRepository) GetScore(ctx context.Context, userID string) (model.Score, error) {
	score := model.Score{UserID: userID, SolvedProblems: []int{}}
	database, err := db.CurrentDatabase(r.dbProvider)
	if err != nil {
		return score, err
	}
	if err := database.QueryRow(ctx, "SELECT score FROM contest_scores WHERE user_id = ?", userID).Scan(&score.Score); err != nil {
		if !db.IsNoRows(err) {
			return score, err
		}
	}

	rows, err := database.Query(ctx, "SELECT problem_id FROM contest_solves WHERE user_id = ? ORDER BY problem_id", userID)
	if err != nil {
		return score, err
	}
	defer rows.Close()
	for rows.Next() {
		var problemID int
		if err := rows.Scan(&problemID); err != nil {
			return score, err
		}
		score.SolvedProblems = append(score.SolvedProblems, problemID)
	}
	return score, rows.Err()
}

func (r *SQLSubmissionRepository) invalidate(ctx context.Context, userID string) {
	if r.cache == nil || userID == "" {
		return
	}
	_ = cache.Invalidate(ctx, r.cache, listCacheKey(userID))
}

func requireAffected(result db.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

func listCacheKey(userID string) string {
	return listCacheKeyPrefix + userID
}

func marshalSubmissions(list []model.Submission) string {
	if len(list) == 0 {
		return ""
	}
	data, err := json.Marshal(list)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmissions(data string) ([]model.Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var list []model.Submission
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, err
	}
	return list, nil
}
