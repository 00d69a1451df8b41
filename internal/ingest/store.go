package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"careerpilot/ingest-service/internal/model"
)

// PgStore persists categories, jobs and their bullet rows.
type PgStore struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

// NewPgStore constructs a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, log: zap.S().Named("store")}
}

// DedupKey returns the identity key of a posting: the apply link when
// present, otherwise the composite title|employer|location.
func DedupKey(p *model.Posting) string {
	if p.ApplyLink != "" {
		return "link:" + p.ApplyLink
	}
	return "composite:" + p.Title + "|" + p.EmployerName + "|" + p.Location
}

// ClaimCategory atomically stamps last_fetched_at on the given category if it
// is active, returning nil when no row matched.
func (s *PgStore) ClaimCategory(ctx context.Context, id string) (*model.Category, error) {
	var c model.Category
	err := s.pool.QueryRow(ctx,
		`UPDATE categories
		 SET last_fetched_at = NOW()
		 WHERE id = $1 AND active = true
		 RETURNING id, name, location`,
		id,
	).Scan(&c.ID, &c.Name, &c.Location)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim category %s: %w", id, err)
	}
	c.Active = true
	return &c, nil
}

// ClaimNextCategory atomically claims the active category with the oldest
// (or NULL) last_fetched_at — the round-robin fairness rule. The inner
// SELECT ... FOR UPDATE SKIP LOCKED keeps concurrent claimants off the same
// row; the whole claim is a single statement, so no application lock exists.
func (s *PgStore) ClaimNextCategory(ctx context.Context) (*model.Category, error) {
	var c model.Category
	err := s.pool.QueryRow(ctx,
		`UPDATE categories c
		 SET last_fetched_at = NOW()
		 WHERE c.id = (
		   SELECT id FROM categories
		   WHERE active = true
		   ORDER BY last_fetched_at ASC NULLS FIRST
		   LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING c.id, c.name, c.location`,
	).Scan(&c.ID, &c.Name, &c.Location)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next category: %w", err)
	}
	c.Active = true
	return &c, nil
}

// ListActiveCategoryIDs returns the IDs of all active categories.
func (s *PgStore) ListActiveCategoryIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM categories WHERE active = true`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SeedCategory inserts an active category with a NULL cursor if it does not
// already exist, used by manual runs on a fresh database.
func (s *PgStore) SeedCategory(ctx context.Context, id, name, location string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO categories (id, name, location, active)
		 VALUES ($1, $2, $3, true)
		 ON CONFLICT (id) DO NOTHING`,
		id, name, location,
	)
	if err != nil {
		return fmt.Errorf("seed category %s: %w", id, err)
	}
	return nil
}

// UpsertPostings stores each posting inside its own transaction, so one
// posting's failure cannot roll back siblings already committed. A failure
// aborts the call; counts cover the postings committed before it.
func (s *PgStore) UpsertPostings(ctx context.Context, postings []model.Posting) (created, updated int, err error) {
	for i := range postings {
		wasCreated, err := s.upsertOne(ctx, &postings[i])
		if err != nil {
			return created, updated, fmt.Errorf("posting %q: %w", postings[i].Title, err)
		}
		if wasCreated {
			created++
		} else {
			updated++
		}
	}
	return created, updated, nil
}

func (s *PgStore) upsertOne(ctx context.Context, p *model.Posting) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent upserts of the same dedup key across workers;
	// released at commit/rollback.
	key := DedupKey(p)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return false, fmt.Errorf("advisory lock: %w", err)
	}

	jobID, err := findJob(ctx, tx, p)
	if err != nil {
		return false, err
	}

	wasCreated := jobID == ""
	if wasCreated {
		jobID, err = insertJob(ctx, tx, p)
	} else {
		err = updateJob(ctx, tx, jobID, p)
	}
	if err != nil {
		return false, err
	}

	if err := replaceBullets(ctx, tx, jobID, p); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return wasCreated, nil
}

func findJob(ctx context.Context, tx pgx.Tx, p *model.Posting) (string, error) {
	var (
		jobID string
		err   error
	)
	if p.ApplyLink != "" {
		err = tx.QueryRow(ctx,
			`SELECT id FROM jobs WHERE apply_link = $1`,
			p.ApplyLink,
		).Scan(&jobID)
	} else {
		err = tx.QueryRow(ctx,
			`SELECT id FROM jobs
			 WHERE title = $1 AND employer_name = $2 AND location = $3
			   AND (apply_link IS NULL OR apply_link = '')`,
			p.Title, p.EmployerName, p.Location,
		).Scan(&jobID)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup job: %w", err)
	}
	return jobID, nil
}

func insertJob(ctx context.Context, tx pgx.Tx, p *model.Posting) (string, error) {
	var jobID string
	err := tx.QueryRow(ctx,
		`INSERT INTO jobs (publisher, title, employer_name, employer_logo, apply_link,
		                   location, description, posted_at, is_remote,
		                   qualifications_raw, responsibilities_raw)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		p.Publisher, p.Title, p.EmployerName, p.EmployerLogo, p.ApplyLink,
		p.Location, p.Description, p.PostedAt, p.IsRemote,
		p.QualificationsRaw, p.ResponsibilitiesRaw,
	).Scan(&jobID)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return jobID, nil
}

// updateJob is a merge-update: empty incoming fields leave existing values
// untouched.
func updateJob(ctx context.Context, tx pgx.Tx, jobID string, p *model.Posting) error {
	_, err := tx.Exec(ctx,
		`UPDATE jobs SET
		   publisher            = COALESCE(NULLIF($2, ''), publisher),
		   title                = COALESCE(NULLIF($3, ''), title),
		   employer_name        = COALESCE(NULLIF($4, ''), employer_name),
		   employer_logo        = COALESCE(NULLIF($5, ''), employer_logo),
		   apply_link           = COALESCE(NULLIF($6, ''), apply_link),
		   location             = COALESCE(NULLIF($7, ''), location),
		   description          = COALESCE(NULLIF($8, ''), description),
		   posted_at            = COALESCE($9, posted_at),
		   is_remote            = $10,
		   qualifications_raw   = COALESCE(NULLIF($11, ''), qualifications_raw),
		   responsibilities_raw = COALESCE(NULLIF($12, ''), responsibilities_raw)
		 WHERE id = $1`,
		jobID,
		p.Publisher, p.Title, p.EmployerName, p.EmployerLogo, p.ApplyLink,
		p.Location, p.Description, p.PostedAt, p.IsRemote,
		p.QualificationsRaw, p.ResponsibilitiesRaw,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// replaceBullets deletes every existing bullet row for the job and inserts
// the incoming set. Full replacement, never a partial patch, so stale
// bullets cannot survive a source-text change between refreshes.
func replaceBullets(ctx context.Context, tx pgx.Tx, jobID string, p *model.Posting) error {
	if _, err := tx.Exec(ctx, `DELETE FROM skill_bullets WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete skill bullets: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM responsibility_bullets WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete responsibility bullets: %w", err)
	}

	for _, b := range p.Skills {
		var id string
		err := tx.QueryRow(ctx,
			`INSERT INTO skill_bullets (job_id, text, is_required)
			 VALUES ($1, $2, $3)
			 RETURNING id`,
			jobID, b.Text, b.Required,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert skill bullet: %w", err)
		}
		if err := attachVector(ctx, tx, "skill_bullets", id, b.Embedding); err != nil {
			return err
		}
	}

	for _, b := range p.Responsibilities {
		var id string
		err := tx.QueryRow(ctx,
			`INSERT INTO responsibility_bullets (job_id, text)
			 VALUES ($1, $2)
			 RETURNING id`,
			jobID, b.Text,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert responsibility bullet: %w", err)
		}
		if err := attachVector(ctx, tx, "responsibility_bullets", id, b.Embedding); err != nil {
			return err
		}
	}

	return nil
}

// attachVector writes the embedding with a raw parameterized update after the
// row insert (insert-then-attach), keeping vector serialization out of the
// typed insert path. A nil vector leaves the column NULL.
func attachVector(ctx context.Context, tx pgx.Tx, table, id string, vec []float32) error {
	if vec == nil {
		return nil
	}
	_, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET embedding = $1::vector WHERE id = $2`, table),
		pgvector.NewVector(vec), id,
	)
	if err != nil {
		return fmt.Errorf("attach vector to %s row %s: %w", table, id, err)
	}
	return nil
}
