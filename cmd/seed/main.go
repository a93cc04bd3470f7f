package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"signoff/internal/config"
	"signoff/internal/logging"
	"signoff/internal/repository"
	"signoff/internal/services"
	"signoff/internal/workflow"
	"signoff/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Fixed ids so that re-running the seed is idempotent.
var seedDeliverables = []struct {
	ID    string
	Title string
	Steps []models.StepDefinition
}{
	{
		ID:    "6f1c1d2e-0000-4000-8000-000000000001",
		Title: "Spring campaign key visual",
		Steps: []models.StepDefinition{
			{StepNumber: 1, Name: "Art director review", ApproverType: models.ApproverTypeEmployee},
			{StepNumber: 2, Name: "Client sign-off", ApproverType: models.ApproverTypeClient},
		},
	},
	{
		ID:    "6f1c1d2e-0000-4000-8000-000000000002",
		Title: "Website copy deck",
	},
}

func main() {
	ctx := context.Background()

	configPath := flag.String("config", "", "Path to config.yaml or .env file")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Connect to DB
	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	store := repository.NewPostgresStore(pool, logger)
	svc, err := services.NewApprovalService(store, services.DefaultOptions(), logger)
	if err != nil {
		log.Fatalf("Failed to create approval service: %v", err)
	}

	seeder := models.Actor{Type: models.ActorTypeSystem, ID: "seed", Name: "seed-script"}

	for _, d := range seedDeliverables {
		// 1. Ensure the deliverable exists
		if _, err := pool.Exec(ctx,
			`INSERT INTO deliverables (id, title, status) VALUES ($1, $2, 'in_review') ON CONFLICT (id) DO NOTHING`,
			d.ID, d.Title); err != nil {
			log.Fatalf("Failed to insert deliverable %s: %v", d.Title, err)
		}

		// 2. Skip deliverables that already have a workflow
		if view, err := svc.GetWorkflowForDeliverable(ctx, d.ID); err == nil {
			logger.Info("Skipping existing workflow", "deliverable", d.Title, "workflow_id", view.ID)
			continue
		} else if !errors.Is(err, workflow.ErrNotFound) {
			log.Fatalf("Failed to look up workflow for %s: %v", d.Title, err)
		}

		// 3. Create the workflow
		req := models.CreateWorkflowRequest{WorkflowType: models.WorkflowTypeSimple}
		if len(d.Steps) > 0 {
			req = models.CreateWorkflowRequest{WorkflowType: models.WorkflowTypeMultiStep, Steps: d.Steps}
		}
		view, err := svc.CreateOrReplaceWorkflow(ctx, seeder, d.ID, req)
		if err != nil {
			log.Printf("Failed to create workflow for %s: %v", d.Title, err)
			continue
		}
		logger.Info("Seeded workflow", "deliverable", d.Title, "workflow_id", view.ID, "steps", len(view.Steps))
	}
	logger.Info("Seeding complete!")
}
