package main

import (
	"database/sql"
	"fmt"
	"os"

	"duka-be/internal/config"
	"duka-be/internal/db"
	"duka-be/internal/logger"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var Version = "dev"

// openDBFunc is swapped in tests.
var openDBFunc = openDB

func main() {
	_ = godotenv.Load()
	logger.Init(os.Getenv("APP_ENV"))
	defer logger.Sync()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operator tooling for order payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(attemptsCmd())
	rootCmd.AddCommand(orphansCmd())
	rootCmd.AddCommand(hashKeyCmd())
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}

// openDB prefers DB_URL and otherwise builds the DSN from the DB_* variables
// the server uses.
func openDB() (*sql.DB, error) {
	if url := os.Getenv("DB_URL"); url != "" {
		return sql.Open("postgres", url)
	}
	return db.NewDatabase(&config.Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
	})
}
