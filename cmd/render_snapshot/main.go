package main

import (
	"context"
	"flag"
	"log"
	"os"

	"chartdesk/internal/adapters/logger"
	"chartdesk/internal/adapters/sqlite"
	"chartdesk/internal/chart"
	"chartdesk/internal/domain"
	"chartdesk/internal/render"
	"chartdesk/internal/utils"
)

func main() {
	csvPath := flag.String("csv", "", "Candle CSV written by fetch_klines (required)")
	dbPath := flag.String("db", "./data/chartdesk.db", "SQLite database holding stored drawings")
	referral := flag.String("referral", "", "Referral code whose drawings to overlay (empty for none)")
	symbol := flag.String("symbol", "BTCUSDT", "Instrument of the stored drawings")
	intervalSecs := flag.Int64("interval-seconds", 60, "Candle interval in seconds")
	width := flag.Float64("width", 1200, "Image width in pixels")
	height := flag.Float64("height", 600, "Image height in pixels")
	out := flag.String("out", "snapshot.png", "Output file")
	format := flag.String("format", "png", "png or svg")
	level := flag.String("log-level", "INFO", "Log level")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	appLogger := logger.New(logger.ParseLevel(*level), logger.FormatText)
	ctx := context.Background()

	imgFormat, err := render.ParseImageFormat(*format)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	candles, err := utils.ReadCandlesFromCSV(*csvPath)
	if err != nil {
		appLogger.Error(ctx, err, "Error reading candles")
		log.Fatalf("Error reading candles: %v", err)
	}

	scope := domain.Scope{ReferralCode: *referral, Symbol: *symbol}
	c := chart.New(chart.Options{
		Layout: chart.Layout{
			Width:   *width,
			Height:  *height,
			Padding: chart.Padding{Top: 20, Right: 70, Bottom: 30, Left: 10},
		},
		Scope:           scope,
		IntervalSeconds: *intervalSecs,
		Capacity:        len(candles),
		Logger:          appLogger,
	})
	c.SetCandles(candles)

	if *referral != "" {
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to open database: %v", err)
		}
		drawings, err := repo.LoadDrawings(ctx, scope)
		repo.Close()
		if err != nil {
			appLogger.Error(ctx, err, "Error loading drawings")
			log.Fatalf("Error loading drawings: %v", err)
		}
		c.SetDrawings(drawings)
		appLogger.Info(ctx, "Loaded drawings", map[string]interface{}{"count": len(c.Drawings())})
	}

	file, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Error creating %s: %v", *out, err)
	}
	defer file.Close()

	if err := render.Snapshot(file, render.NewPipeline(), c.Frame(), imgFormat); err != nil {
		appLogger.Error(ctx, err, "Error rendering snapshot")
		log.Fatalf("Error rendering snapshot: %v", err)
	}
	appLogger.Info(ctx, "Snapshot written", map[string]interface{}{"file": *out, "candles": len(candles)})
}
