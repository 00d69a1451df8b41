package ingest

// Integration tests against a real PostgreSQL with the pipeline schema
// applied (migrations live outside this repo). Run with:
//
//	TEST_DATABASE_URL=postgres://... go test ./internal/ingest -run Integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerpilot/ingest-service/internal/model"
)

func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedTestCategory(t *testing.T, pool *pgxpool.Pool, id string, lastFetched *time.Time) {
	t.Helper()
	ctx := context.Background()
	_, err := pool.Exec(ctx,
		`INSERT INTO categories (id, name, location, active, last_fetched_at)
		 VALUES ($1, $2, $3, true, $4)`,
		id, "Software Engineer", "Remote", lastFetched,
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	})
}

func TestIntegration_ClaimFairness(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	store := NewPgStore(pool)

	twoDaysAgo := time.Now().Add(-48 * time.Hour)
	oneDayAgo := time.Now().Add(-24 * time.Hour)
	stale := "it-claim-" + uuid.NewString()
	never := "it-claim-" + uuid.NewString()
	recent := "it-claim-" + uuid.NewString()
	seedTestCategory(t, pool, stale, &twoDaysAgo)
	seedTestCategory(t, pool, never, nil)
	seedTestCategory(t, pool, recent, &oneDayAgo)

	// NULL is treated as oldest.
	claimed, err := store.ClaimNextCategory(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, never, claimed.ID)

	// Next claim takes the stalest timestamp.
	claimed, err = store.ClaimNextCategory(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, stale, claimed.ID)
}

func TestIntegration_ClaimInactiveNotFound(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	store := NewPgStore(pool)

	id := "it-inactive-" + uuid.NewString()
	_, err := pool.Exec(ctx,
		`INSERT INTO categories (id, name, location, active) VALUES ($1, 'X', 'Y', false)`, id)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id) })

	claimed, err := store.ClaimCategory(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestIntegration_UpsertIdempotent(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	store := NewPgStore(pool)

	link := "https://integration.test/" + uuid.NewString()
	posting := model.Posting{
		Publisher:    "LinkedIn",
		Title:        "Software Engineer",
		EmployerName: "Acme",
		ApplyLink:    link,
		Location:     "Remote",
		Description:  "build things",
		Skills: []model.Bullet{
			{Text: "Go", Required: true},
			{Text: "SQL"},
		},
		Responsibilities: []model.Bullet{
			{Text: "ship features"},
		},
	}
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM skill_bullets WHERE job_id IN (SELECT id FROM jobs WHERE apply_link = $1)`, link)
		pool.Exec(ctx, `DELETE FROM responsibility_bullets WHERE job_id IN (SELECT id FROM jobs WHERE apply_link = $1)`, link)
		pool.Exec(ctx, `DELETE FROM jobs WHERE apply_link = $1`, link)
	})

	created, updated, err := store.UpsertPostings(ctx, []model.Posting{posting})
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, updated)

	// Same dedup key again: exactly one job row, updated not created, and
	// bullet rows fully replaced rather than accumulated.
	created, updated, err = store.UpsertPostings(ctx, []model.Posting{posting})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 1, updated)

	var jobCount, skillCount, respCount int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM jobs WHERE apply_link = $1`, link).Scan(&jobCount))
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM skill_bullets WHERE job_id IN (SELECT id FROM jobs WHERE apply_link = $1)`, link).Scan(&skillCount))
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM responsibility_bullets WHERE job_id IN (SELECT id FROM jobs WHERE apply_link = $1)`, link).Scan(&respCount))
	assert.Equal(t, 1, jobCount)
	assert.Equal(t, 2, skillCount)
	assert.Equal(t, 1, respCount)
}

func TestIntegration_MergeUpdateKeepsExistingFields(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	store := NewPgStore(pool)

	link := "https://integration.test/" + uuid.NewString()
	full := model.Posting{
		Publisher:    "LinkedIn",
		Title:        "Software Engineer",
		EmployerName: "Acme",
		EmployerLogo: "https://logo/acme.png",
		ApplyLink:    link,
		Location:     "Remote",
		Description:  "original description",
	}
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM jobs WHERE apply_link = $1`, link)
	})

	_, _, err := store.UpsertPostings(ctx, []model.Posting{full})
	require.NoError(t, err)

	// A refresh without logo or description must not blank them out.
	sparse := model.Posting{
		Title:        "Software Engineer",
		EmployerName: "Acme",
		ApplyLink:    link,
		Location:     "Remote",
	}
	_, updated, err := store.UpsertPostings(ctx, []model.Posting{sparse})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	var logo, description string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT employer_logo, description FROM jobs WHERE apply_link = $1`, link,
	).Scan(&logo, &description))
	assert.Equal(t, "https://logo/acme.png", logo)
	assert.Equal(t, "original description", description)
}
