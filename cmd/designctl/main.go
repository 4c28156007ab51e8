// designctl applies, checks and decommissions design files against a
// lodestone database without running the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lodestone/internal/domain"
	"lodestone/internal/loader"
	"lodestone/internal/repository/sqlite"
	"lodestone/internal/runner"
	"lodestone/internal/service"
)

func main() {
	dbPath := flag.String("db", "./lodestone.db", "SQLite database path")
	apply := flag.String("apply", "", "design file to apply as a deployment")
	check := flag.String("check", "", "fixture file to apply and check")
	decommission := flag.String("decommission", "", "deployment ID to decommission")
	export := flag.String("export", "", "export format: json, yaml or ansible-inventory")
	deployment := flag.String("deployment", "", "deployment name (defaults to the design file name)")
	dryRun := flag.Bool("dry-run", false, "validate the design and roll back")
	flag.Parse()

	log.SetFlags(0)

	repo, err := sqlite.New(*dbPath, domain.DefaultRegistry())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch {
	case *apply != "":
		if err := runApply(ctx, repo, *apply, *deployment, *dryRun); err != nil {
			log.Fatalf("Apply failed: %v", err)
		}
	case *check != "":
		r := runner.New(repo, repo.Registry())
		if err := r.RunFile(ctx, *check); err != nil {
			log.Fatalf("Check failed: %v", err)
		}
		log.Printf("OK %s", *check)
	case *decommission != "":
		svc := service.NewDesignService(repo, service.NewEventBus())
		if err := svc.Decommission(ctx, *decommission); err != nil {
			log.Fatalf("Decommission failed: %v", err)
		}
		log.Printf("Decommissioned %s", *decommission)
	case *export != "":
		svc := service.NewRecordService(repo, service.NewEventBus())
		if err := svc.Export(ctx, *export, os.Stdout); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runApply(ctx context.Context, repo *sqlite.Repository, path, deploymentName string, dryRun bool) error {
	chain, err := loader.LoadChain(path)
	if err != nil {
		return err
	}

	svc := service.NewDesignService(repo, service.NewEventBus())
	for _, fixture := range chain {
		name := strings.TrimSuffix(filepath.Base(fixture.Path), filepath.Ext(fixture.Path))
		depName := name
		if deploymentName != "" && fixture.Path == path {
			depName = deploymentName
		}

		result, err := svc.Apply(ctx, name, depName, fixture, dryRun)
		if err != nil {
			return fmt.Errorf("%s: %w", fixture.Path, err)
		}

		var created, updated int
		for _, ids := range result.Created {
			created += len(ids)
		}
		for _, ids := range result.Updated {
			updated += len(ids)
		}
		verb := "Applied"
		if dryRun {
			verb = "Validated"
		}
		log.Printf("%s %s: %d created, %d updated", verb, fixture.Path, created, updated)
	}
	return nil
}
