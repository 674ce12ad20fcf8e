// Package sql provides the embedded DDL for the relations the participant
// finder reads.
//
// The SQL is embedded at compile time, so the test harness and the doctor
// command carry the schema with them and need no external files at runtime.
// Both files apply idempotently (CREATE ... IF NOT EXISTS / OR REPLACE).
package sql

import (
	_ "embed"
)

// SchemaSQL contains the participant relations: participants,
// participants_status, ros_status, employer_sites, users, and
// participants_distance, with the partial unique index enforcing at most one
// current status record per participant/employer pair.
//
//go:embed schema.sql
var SchemaSQL string

// StatusInfosViewSQL contains the participants_status_infos view read by
// privileged roles. It must be applied after SchemaSQL.
//
//go:embed status_infos_view.sql
var StatusInfosViewSQL string
