// Command migrate applies the lead-pool schema files in migrations/ to
// the database named by DATABASE_URL. Each .sql file runs in its own
// transaction, in lexical order, so a failed file rolls back cleanly
// without blocking the ones after it. Pass --list to print the tables
// already present instead of applying anything.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

func main() {
	listOnly := flag.Bool("list", false, "list existing tables and exit")
	flag.Parse()

	dir := "migrations"
	if flag.NArg() > 0 {
		dir = flag.Arg(0)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	if *listOnly {
		listTables(db)
		return
	}

	files, err := sqlFiles(dir)
	if err != nil {
		log.Fatalf("scan %s: %v", dir, err)
	}
	if len(files) == 0 {
		log.Fatalf("no .sql files in %s", dir)
	}

	var applied, failed int
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		fmt.Printf("  %s ... ", f)

		tx, err := db.Begin()
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			failed++
			continue
		}
		if _, err := tx.Exec(string(data)); err != nil {
			tx.Rollback()
			fmt.Printf("ERROR: %v\n", err)
			failed++
			continue
		}
		tx.Commit()
		fmt.Println("OK")
		applied++
	}
	log.Printf("migrations done: %d applied, %d failed", applied, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// sqlFiles returns the .sql names in dir sorted so the numeric prefixes
// (001_init.sql, 002_...) apply in order.
func sqlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func listTables(db *sql.DB) {
	rows, err := db.Query(
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		log.Fatalf("list tables: %v", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			log.Fatalf("scan table name: %v", err)
		}
		fmt.Println(" ", name)
		n++
	}
	fmt.Printf("%d tables\n", n)
}
