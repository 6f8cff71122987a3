// ABOUTME: Entry point for the CRM extension server
// ABOUTME: Loads environment config, opens the store, and serves the HTTP front door
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/QV-Systems/rc-unified-crm-extension/db"
	"github.com/QV-Systems/rc-unified-crm-extension/web"
)

const version = "0.1.0"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/rc-unified-crm/extension.db)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")
	port := flag.Int("port", 6066, "HTTP listen port")
	flag.Parse()

	if *showVersion {
		fmt.Printf("rc-unified-crm-extension version %s\n", version)
		os.Exit(0)
	}

	// Missing .env is fine; production sets real environment variables.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}
	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	path := *dbPath
	if path == "" {
		path = db.DefaultPath()
	}
	database, err := db.OpenDatabase(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()
	log.Printf("Extension database: %s", path)

	if *initOnly {
		log.Println("Database initialized successfully")
		os.Exit(0)
	}

	server := web.NewServer(database)
	if err := server.Start(*port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
