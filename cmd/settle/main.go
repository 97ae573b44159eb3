package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/floradispatch/internal/config"
	"github.com/example/floradispatch/internal/database"
	"github.com/example/floradispatch/internal/models"
	"github.com/example/floradispatch/internal/repositories"
	"github.com/example/floradispatch/internal/services"
)

func main() {
	var (
		startFlag = flag.String("start", "", "period start date (YYYY-MM-DD), defaults to last week's by schedule")
		endFlag   = flag.String("end", "", "period end date (YYYY-MM-DD), exclusive")
		process   = flag.Bool("process", false, "mark generated pending settlements as completed")
		timeout   = flag.Duration("timeout", 5*time.Minute, "overall run timeout")
	)
	flag.Parse()

	cfg := config.Load()
	zlog, err := services.NewLogger()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	db, err := database.Connect(cfg.DatabaseURL, gormlogger.Warn)
	if err != nil {
		zlog.Fatal("database init failed", zap.Error(err))
	}

	deps := services.NewDeps(repositories.NewGormRepository(db), cfg.Dispatch)
	deps.Logger = zlog
	settlements := services.NewSettlementService(deps)

	start, end, err := period(*startFlag, *endFlag, deps, cfg.Settlement)
	if err != nil {
		log.Fatalf("invalid period: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	runs, genErr := settlements.Generate(ctx, start, end)
	if genErr != nil {
		zlog.Error("some stores were not settled", zap.Error(genErr))
	}

	if *process {
		for i, run := range runs {
			if run.Settlement.Status != models.SettlementPending {
				continue
			}
			processed, err := settlements.Process(ctx, run.Settlement.ID)
			if err != nil {
				zlog.Error("process settlement failed", zap.String("settlement_id", run.Settlement.ID.String()), zap.Error(err))
				continue
			}
			runs[i].Settlement = processed
		}
	}

	fmt.Printf("settlement period %s ~ %s\n", start.Format(time.DateOnly), end.Format(time.DateOnly))
	if err := printRuns(os.Stdout, runs); err != nil {
		log.Fatalf("render table: %v", err)
	}
	if genErr != nil {
		os.Exit(1)
	}
}

// period parses the flags in the configured zone. With no flags it settles
// the week that ended at the most recent scheduled run.
func period(startFlag, endFlag string, deps services.Deps, sched config.SettlementConfig) (time.Time, time.Time, error) {
	loc := deps.Config.Location
	if startFlag == "" && endFlag == "" {
		scheduler := services.NewScheduler(deps, sched, nil)
		last := scheduler.NextRun(time.Now()).AddDate(0, 0, -7)
		start, end := scheduler.PeriodFor(last)
		return start, end, nil
	}
	start, err := time.ParseInLocation(time.DateOnly, startFlag, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	end, err := time.ParseInLocation(time.DateOnly, endFlag, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

func printRuns(w io.Writer, runs []services.SettlementRun) error {
	table := tablewriter.NewWriter(w)
	table.Header("Store", "Orders", "Total", "Commission", "Net", "Status", "New")

	var orders int
	var total, commission, net int64
	for _, run := range runs {
		s := run.Settlement
		created := ""
		if run.Created {
			created = "yes"
		}
		if err := table.Append([]string{
			run.StoreName,
			fmt.Sprintf("%d", s.OrderCount),
			services.FormatPrice(s.TotalAmount),
			services.FormatPrice(s.CommissionAmount),
			services.FormatPrice(s.NetAmount),
			s.Status,
			created,
		}); err != nil {
			return err
		}
		orders += s.OrderCount
		total += s.TotalAmount
		commission += s.CommissionAmount
		net += s.NetAmount
	}
	table.Footer("Total", fmt.Sprintf("%d", orders), services.FormatPrice(total), services.FormatPrice(commission), services.FormatPrice(net), "", "")
	return table.Render()
}
