package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	devenv "qualflat/dev/env"
	storedb "qualflat/internal/store/db"

	_ "modernc.org/sqlite"
)

const localConfig = `{
  // copy of qualflat.json5 values for local development, never commit this file
  api: {
    base_url: "https://ca1.qualtrics.com/API/v3/",
    // leave empty to read QUALTRICS_API_TOKEN from the environment or .env
    token: "",
  },
  database: {
    file: "<dev_state>/qualflat.db",
  },
}
`

func createDb(filename, schema string) error {
	dbPath, err := devenv.ResolvePath(filepath.Join("<dev_state>", filename))
	if err != nil {
		return err
	}

	_, err = os.Stat(dbPath)
	if err == nil {
		fmt.Println("database already created at", dbPath)
		return nil
	}

	fmt.Println("creating database at", dbPath)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(schema)
	return err
}

func CreatePullDB() error {
	return createDb("qualflat.db", storedb.Schema)
}

func CreateLocalConfig() error {
	_, err := os.Stat("qualflat.local.json5")
	if err == nil {
		fmt.Println("qualflat.local.json5 already exists")
		return nil
	}
	fmt.Println("writing qualflat.local.json5")
	return os.WriteFile("qualflat.local.json5", []byte(localConfig), 0600)
}

func PrintConfigLocations() {
	slog.Info("fill in the api token in qualflat.local.json5 (or QUALTRICS_API_TOKEN in .env) before running `go run ./cmd/qualflat`.")
}
