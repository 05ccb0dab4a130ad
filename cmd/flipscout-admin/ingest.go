package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/flipscout/flipscout/config"
	"github.com/flipscout/flipscout/internal/data"
	"github.com/flipscout/flipscout/internal/domain/model"
	"github.com/flipscout/flipscout/internal/service"
)

// runIngest loads a CSV input list and upserts each product. Columns are
// marketplace_id, universal_code, title; a header row is detected and
// skipped.
func runIngest(ctx context.Context, _ *config.AppConfig, db *sql.DB, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	file := fs.String("file", "", "path to the CSV input list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("open input list: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	reqs, err := readProductCSV(f)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return errors.New("input list contains no products")
	}

	products := service.NewProductService(service.ProductServiceOptions{
		Repo:   data.NewProductRepo(db),
		Logger: logger,
	})

	result, err := products.Ingest(ctx, reqs)
	if err != nil {
		return err
	}

	fmt.Printf("ingested %d products (%d rejected)\n", result.Accepted, result.Rejected)
	return nil
}

func readProductCSV(r io.Reader) ([]model.IngestProductRequest, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var reqs []model.IngestProductRequest
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return reqs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read input list: %w", err)
		}
		line++

		if len(record) < 3 {
			return nil, fmt.Errorf("line %d: expected marketplace_id,universal_code,title", line)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "marketplace_id") {
			continue
		}

		req := model.IngestProductRequest{
			MarketplaceID: strings.TrimSpace(record[0]),
			Title:         strings.TrimSpace(record[2]),
		}
		if code := strings.TrimSpace(record[1]); code != "" {
			req.UniversalCode = &code
		}
		reqs = append(reqs, req)
	}
}
