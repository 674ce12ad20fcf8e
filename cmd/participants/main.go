// Package main provides a CLI for the participant query pipeline.
//
// The CLI supports:
//   - query: Run a participant query as a given user and print the results
//   - migrate: Apply the participant relations and aggregate view to PostgreSQL
//   - doctor: Run health checks on the query infrastructure
//   - config: Show effective configuration
//
// Commands that require database access (query, migrate, doctor) need --db,
// PORTAL_DATABASE_URL, or database settings in portal.yaml. The query command
// with --explain only renders SQL and needs no database.
package main

func main() {
	Execute()
}
