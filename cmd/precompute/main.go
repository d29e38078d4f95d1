// precompute runs the full positioning pipeline over a day of raw
// signal CSVs and persists the result as a new run in the sqlite
// database. It is the batch counterpart of the serving binary: the
// server only reads runs that this tool (or the ingest endpoint)
// produced.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wardsight/occupancy.report/internal/config"
	"github.com/wardsight/occupancy.report/internal/db"
	"github.com/wardsight/occupancy.report/internal/report"
	"github.com/wardsight/occupancy.report/internal/ward"
)

func main() {
	var dataDir string
	var anchorsPath string
	var dbPath string
	var configPath string
	var plotsDir string
	var seed int64
	var keepRaw bool

	flag.StringVar(&dataDir, "data", "", "directory of raw signal CSV files (T31_*, T41_*, TMobile_*)")
	flag.StringVar(&anchorsPath, "anchors", "", "anchor metadata CSV")
	flag.StringVar(&dbPath, "db", "occupancy.db", "path to sqlite db")
	flag.StringVar(&configPath, "config", "", "optional tuning config (JSON)")
	flag.StringVar(&plotsDir, "plots", "", "optional directory for PNG plots")
	flag.Int64Var(&seed, "seed", -1, "override RNG seed (-1 = use config value)")
	flag.BoolVar(&keepRaw, "keep-raw", false, "archive raw signal rows with the run")
	flag.Parse()

	if dataDir == "" || anchorsPath == "" {
		log.Fatalf("both -data and -anchors must be provided")
	}

	tuning := config.EmptyTuningConfig()
	if configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(configPath)
		if err != nil {
			log.Fatalf("load tuning config: %v", err)
		}
	}

	anchors, err := ward.LoadAnchorsCSV(anchorsPath)
	if err != nil {
		log.Fatalf("load anchors: %v", err)
	}
	registry, err := ward.NewAnchorRegistry(anchors)
	if err != nil {
		log.Fatalf("build anchor registry: %v", err)
	}

	batch, stats, err := ward.ReadBatchDir(dataDir)
	if err != nil {
		log.Fatalf("read signal batch: %v", err)
	}
	fmt.Printf("ingested %d rows from %d files (dropped=%d unknown_type=%d)\n",
		stats.Rows, stats.Files, stats.Dropped, stats.UnknownType)

	pipeCfg := tuning.PipelineConfig()
	if seed >= 0 {
		pipeCfg.Seed = seed
	}

	pipeline, err := ward.NewPipeline(pipeCfg, registry)
	if err != nil {
		log.Fatalf("build pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, batch)
	if err != nil {
		log.Fatalf("pipeline run: %v", err)
	}
	fmt.Printf("run %s: %d position tracks, %d activity rows, %d operation rows, %d journey rows, %d unresolved signals (%.1fs)\n",
		res.RunID, len(res.Positions), len(res.Activity), len(res.Operation), len(res.Journey.Devices),
		res.Unresolved, res.Elapsed.Seconds())

	dbConn, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()

	if err := dbConn.SaveAnchors(anchors); err != nil {
		log.Fatalf("save anchors: %v", err)
	}
	if err := dbConn.SaveRun(res); err != nil {
		log.Fatalf("save run: %v", err)
	}
	fmt.Printf("saved run %s to %s\n", res.RunID, dbPath)

	if keepRaw {
		all := make([]ward.SignalRecord, 0, stats.Total())
		all = append(all, batch.Equipment...)
		all = append(all, batch.Workers...)
		all = append(all, batch.Phones...)
		if err := dbConn.SaveSignals(res.RunID, all); err != nil {
			log.Fatalf("save raw signals: %v", err)
		}
		fmt.Printf("archived %d raw signals\n", len(all))
	}

	if plotsDir != "" {
		outDir := report.MakeOutputDir(plotsDir, res.RunID)
		count, err := report.NewRenderer(outDir).WritePlots(res, anchors)
		if err != nil {
			log.Fatalf("write plots: %v", err)
		}
		fmt.Printf("wrote %d plots to %s\n", count, outDir)
	}
}
