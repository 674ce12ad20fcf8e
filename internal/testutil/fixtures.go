package testutil

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// Seeder inserts participant fixtures into a test database. Failures abort
// the test; seeding is setup, not the behavior under test.
type Seeder struct {
	tb testing.TB
	db *sql.DB
}

// NewSeeder creates a Seeder over the given database.
func NewSeeder(tb testing.TB, db *sql.DB) *Seeder {
	tb.Helper()
	return &Seeder{tb: tb, db: db}
}

// Participant inserts a participant with the given attribute document and
// returns its id.
func (s *Seeder) Participant(body map[string]any) int64 {
	s.tb.Helper()
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO participants (body) VALUES ($1) RETURNING id`,
		mustJSON(s.tb, body),
	).Scan(&id)
	require.NoError(s.tb, err, "seeding participant")
	return id
}

// Status inserts an engagement status record and returns its id.
func (s *Seeder) Status(participantID int64, employerID string, status string, current bool, siteID int64, data map[string]any) int64 {
	s.tb.Helper()
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO participants_status (participant_id, employer_id, status, current, site_id, data)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		participantID, employerID, status, current, siteID, mustJSON(s.tb, data),
	).Scan(&id)
	require.NoError(s.tb, err, "seeding status")
	return id
}

// Ros inserts a return-of-service milestone and returns its id.
func (s *Seeder) Ros(participantID, siteID int64, current bool, data map[string]any) int64 {
	s.tb.Helper()
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO ros_status (participant_id, site_id, is_current, data)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		participantID, siteID, current, mustJSON(s.tb, data),
	).Scan(&id)
	require.NoError(s.tb, err, "seeding ros status")
	return id
}

// Site inserts an employer site.
func (s *Seeder) Site(id int64, name, region string) {
	s.tb.Helper()
	_, err := s.db.Exec(
		`INSERT INTO employer_sites (id, name, region) VALUES ($1, $2, $3)`,
		id, name, region,
	)
	require.NoError(s.tb, err, "seeding site")
}

// User inserts a portal user with its operated sites.
func (s *Seeder) User(id string, body map[string]any, sites []int64) {
	s.tb.Helper()
	_, err := s.db.Exec(
		`INSERT INTO users (id, body, sites) VALUES ($1, $2, $3)`,
		id, mustJSON(s.tb, body), pq.Array(sites),
	)
	require.NoError(s.tb, err, "seeding user")
}

// Distance inserts a precomputed participant-to-site distance.
func (s *Seeder) Distance(participantID, siteID int64, distance float64) {
	s.tb.Helper()
	_, err := s.db.Exec(
		`INSERT INTO participants_distance (participant_id, site_id, distance)
		 VALUES ($1, $2, $3)`,
		participantID, siteID, distance,
	)
	require.NoError(s.tb, err, "seeding distance")
}

// mustJSON renders a document as a jsonb text literal. Returned as string so
// the driver sends it with unknown type and PostgreSQL coerces it to jsonb.
func mustJSON(tb testing.TB, v map[string]any) string {
	tb.Helper()
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.Marshal(v)
	require.NoError(tb, err)
	return string(b)
}
