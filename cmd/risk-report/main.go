package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/parser06/first-responder-risk/internal/config"
	"github.com/parser06/first-responder-risk/internal/models"
	"github.com/parser06/first-responder-risk/internal/report"
	"github.com/parser06/first-responder-risk/internal/repository"
	"github.com/parser06/first-responder-risk/pkg/database"
)

func main() {
	officerID := flag.String("officer", "", "filter events by officer ID (also adds a vital-samples sheet)")
	riskLevel := flag.String("level", "", "filter by risk level (low, medium, high, critical)")
	fromStr := flag.String("from", "", "range start, RFC3339 (default: 24h ago)")
	toStr := flag.String("to", "", "range end, RFC3339 (default: now)")
	outputPath := flag.String("out", "risk_report.xlsx", "output xlsx path")
	flag.Parse()

	from, to, err := parseRange(*fromStr, *toStr)
	if err != nil {
		log.Fatalf("Invalid time range: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	eventsRepo := repository.NewPostgresRiskEventsRepository(db)
	events, err := eventsRepo.ListEvents(ctx, &repository.RiskEventFilters{
		OfficerID: *officerID,
		RiskLevel: *riskLevel,
		From:      &from,
		To:        &to,
	})
	if err != nil {
		log.Fatalf("Failed to query risk events: %v", err)
	}
	fmt.Printf("Found %d risk events between %s and %s\n",
		len(events), from.Format(time.RFC3339), to.Format(time.RFC3339))

	// 指定警员时附带该警员的采样明细工作表
	var samples []*models.VitalSample
	if *officerID != "" {
		vitalsRepo := repository.NewPostgresVitalsRepository(db)
		samples, err = vitalsRepo.ListSamples(ctx, *officerID, from, to, 0)
		if err != nil {
			log.Fatalf("Failed to query vital samples: %v", err)
		}
		fmt.Printf("Found %d vital samples for officer %s\n", len(samples), *officerID)
	}

	data, err := report.GenerateRiskReport(events, samples)
	if err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}

	if err := os.WriteFile(*outputPath, data, 0644); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	fmt.Printf("Report written to %s\n", *outputPath)
}

// parseRange 解析时间范围, 缺省为最近 24 小时
func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.Add(-24 * time.Hour)
	to := now

	var err error
	if fromStr != "" {
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
		}
	}
	if toStr != "" {
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
		}
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("-to must be after -from")
	}

	return from, to, nil
}
