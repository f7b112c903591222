// Command seeder loads branches, operators, products and customers from a YAML file.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/backend-pdv/internal/obs"
	"github.com/noah-isme/backend-pdv/internal/store"
)

func main() {
	file := flag.String("file", "seed.yaml", "seed file")
	migrate := flag.Bool("migrate", true, "apply migrations first")
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL")).With().Str("component", "seeder").Logger()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	in, err := os.Open(*file)
	if err != nil {
		logger.Fatal().Err(err).Msg("open seed file")
	}
	defer in.Close()
	seed, err := parseSeed(in)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid seed file")
	}

	if *migrate {
		if err := store.Migrate(dbURL); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	st := store.NewStore(pool)
	var s summary
	err = st.WithTx(ctx, func(q *store.Queries) error {
		s, err = apply(ctx, q, seed)
		return err
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
	logger.Info().
		Int("branches", s.Branches).
		Int("users", s.Users).
		Int("products", s.Products).
		Int("customers", s.Customers).
		Msg("seeding completed")
}
