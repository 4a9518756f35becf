package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to postgres, retrying while the database is still starting.
func Open(databaseURL string, maxRetries int, wait time.Duration) (*sql.DB, error) {
	var conn *sql.DB
	var err error
	for i := 1; i <= maxRetries; i++ {
		conn, err = sql.Open("postgres", databaseURL)
		if err == nil {
			if err = conn.Ping(); err == nil {
				log.Println("Database connected successfully!")
				return conn, nil
			}
			conn.Close()
		}
		log.Printf("Database not ready yet (attempt %d/%d): %v", i, maxRetries, err)
		if i < maxRetries {
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("failed to connect to DB: %w", err)
}
