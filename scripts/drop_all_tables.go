package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Drops every pgcontents table plus the migration version table. Unlike
// 'pgcontents migrate down', this works even when a failed migration left
// schema_migrations dirty. Development use only.
func main() {
	dbURL := os.Getenv("PGCONTENTS_DB")
	if dbURL == "" {
		log.Fatal("PGCONTENTS_DB environment variable is required")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = db.Close() }() // Error ignored: script exiting

	dropSQL := `
		DROP TABLE IF EXISTS pgcontents.remote_checkpoints CASCADE;
		DROP TABLE IF EXISTS pgcontents.files CASCADE;
		DROP TABLE IF EXISTS pgcontents.directories CASCADE;
		DROP TABLE IF EXISTS pgcontents.users CASCADE;
		DROP SCHEMA IF EXISTS pgcontents CASCADE;
		DROP TABLE IF EXISTS schema_migrations CASCADE;
	`

	if _, err := db.Exec(dropSQL); err != nil {
		log.Fatalf("Failed to drop tables: %v", err)
	}

	fmt.Println("All tables dropped successfully")
}
