package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"lodestone/internal/design"
	"lodestone/internal/design/ext"
	"lodestone/internal/domain"
	"lodestone/internal/loader"
	"lodestone/internal/repository"
	"lodestone/internal/repository/sqlite"
	"lodestone/internal/runner"
)

// DesignService applies design documents as tracked deployments and
// decommissions them again.
type DesignService struct {
	repo     *sqlite.Repository
	eventBus *EventBus
}

// NewDesignService creates a new design service
func NewDesignService(repo *sqlite.Repository, eventBus *EventBus) *DesignService {
	return &DesignService{
		repo:     repo,
		eventBus: eventBus,
	}
}

// ApplyResult summarizes one design run.
type ApplyResult struct {
	Deployment domain.Record       `json:"deployment"`
	ChangeSet  domain.Record       `json:"change_set"`
	Created    map[string][]string `json:"created"`
	Updated    map[string][]string `json:"updated"`
	DryRun     bool                `json:"dry_run"`
}

// errDryRun aborts the transaction after a successful dry run so nothing
// persists.
var errDryRun = errors.New("dry run requested")

// Apply runs a fixture's designs as a deployment of the named design. The
// whole run is one transaction: any error, including a failing entry in
// the fixture's checks block, rolls every record back. With dryRun set the
// run is validated and then rolled back as well.
//
// Reapplying an existing deployment bumps its version and records a new
// change set; each record still joins the journal at most once per run.
func (s *DesignService) Apply(ctx context.Context, designName, deploymentName string, fixture *loader.Fixture, dryRun bool) (*ApplyResult, error) {
	if designName == "" {
		return nil, fmt.Errorf("a design name is required")
	}
	if deploymentName == "" {
		return nil, fmt.Errorf("a deployment name is required")
	}

	result := &ApplyResult{DryRun: dryRun}
	created := false

	err := s.repo.Transact(ctx, func(store repository.Store) error {
		deployment, isNew, err := s.ensureDeployment(ctx, store, designName, deploymentName)
		if err != nil {
			return err
		}
		created = isNew

		changeSet, err := store.Insert(ctx, domain.ModelChangeSet, domain.Record{
			"deployment": deployment.ID(),
		})
		if err != nil {
			return err
		}

		exts := make([]design.Extension, 0, len(fixture.Extensions))
		for _, name := range fixture.Extensions {
			e, err := ext.ByName(name)
			if err != nil {
				return err
			}
			exts = append(exts, e)
		}

		journal := design.NewJournal(store, changeSet.ID())
		env, err := design.NewEnvironment(store, s.repo.Registry(),
			design.WithJournal(journal),
			design.WithExtensions(exts...),
		)
		if err != nil {
			return err
		}

		for _, doc := range fixture.Designs {
			if err := env.Apply(ctx, doc); err != nil {
				env.RollbackExtensions(ctx)
				return err
			}
		}
		if err := env.CommitExtensions(ctx); err != nil {
			return err
		}

		for i, check := range fixture.Checks {
			if err := runner.Evaluate(ctx, env, check); err != nil {
				return fmt.Errorf("check %d (%s): %w", i, check.Kind, err)
			}
		}

		result.Deployment = deployment
		result.ChangeSet = changeSet
		result.Created = journal.Created()
		result.Updated = journal.Updated()

		if dryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return nil, err
	}

	if !dryRun {
		eventType := EventDeploymentUpdated
		if created {
			eventType = EventDeploymentCreated
		}
		s.eventBus.Publish(Event{
			Type: eventType,
			Payload: map[string]string{
				"design":     designName,
				"deployment": deploymentName,
			},
		})
		s.eventBus.Publish(Event{
			Type:    EventDesignApplied,
			Payload: map[string]string{"deployment": result.Deployment.ID()},
		})
	}
	return result, nil
}

// ensureDeployment finds or creates the design and deployment records.
// Deployment names are unique per design; reapplying bumps the version.
func (s *DesignService) ensureDeployment(ctx context.Context, store repository.Store, designName, deploymentName string) (domain.Record, bool, error) {
	designRec, err := store.Get(ctx, domain.ModelDesign, domain.Record{"name": designName})
	if errors.Is(err, repository.ErrNotFound) {
		designRec, err = store.Insert(ctx, domain.ModelDesign, domain.Record{"name": designName})
	}
	if err != nil {
		return nil, false, err
	}

	deployment, err := store.Get(ctx, domain.ModelDeployment, domain.Record{
		"design": designRec.ID(),
		"name":   deploymentName,
	})
	if errors.Is(err, repository.ErrNotFound) {
		deployment, err = store.Insert(ctx, domain.ModelDeployment, domain.Record{
			"design":  designRec.ID(),
			"name":    deploymentName,
			"status":  string(domain.DeploymentStatusActive),
			"version": 1,
		})
		return deployment, true, err
	}
	if err != nil {
		return nil, false, err
	}

	if deployment.String("status") == string(domain.DeploymentStatusDecommissioned) {
		return nil, false, fmt.Errorf("deployment %s/%s is decommissioned; pick a new deployment name", designName, deploymentName)
	}
	version, _ := deployment.Int("version")
	deployment, err = store.Update(ctx, domain.ModelDeployment, deployment.ID(), domain.Record{
		"status":  string(domain.DeploymentStatusActive),
		"version": version + 1,
	})
	return deployment, false, err
}

// Decommission reverts a deployment: its change records replay newest
// first, deleting records the deployment created and restoring prior
// values on records it only modified. The deployment stays behind with
// status decommissioned as an audit trail.
func (s *DesignService) Decommission(ctx context.Context, deploymentID string) error {
	err := s.repo.Transact(ctx, func(store repository.Store) error {
		deployment, err := store.Get(ctx, domain.ModelDeployment, domain.Record{"id": deploymentID})
		if err != nil {
			return err
		}
		if deployment.String("status") == string(domain.DeploymentStatusDecommissioned) {
			return fmt.Errorf("deployment %s is already decommissioned", deployment.String("name"))
		}

		changeSets, err := store.Find(ctx, domain.ModelChangeSet, domain.Record{"deployment": deployment.ID()})
		if err != nil {
			return err
		}
		for i := len(changeSets) - 1; i >= 0; i-- {
			records, err := store.Find(ctx, domain.ModelChangeRecord, domain.Record{"change_set": changeSets[i].ID()})
			if err != nil {
				return err
			}
			for j := len(records) - 1; j >= 0; j-- {
				if err := s.revertRecord(ctx, store, deployment, records[j]); err != nil {
					return err
				}
			}
		}

		_, err = store.Update(ctx, domain.ModelDeployment, deployment.ID(), domain.Record{
			"status": string(domain.DeploymentStatusDecommissioned),
		})
		return err
	})
	if err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventDeploymentDecommissioned,
		Payload: map[string]string{"deployment": deploymentID},
	})
	return nil
}

// revertRecord undoes one change record. Full-control records were created
// by the deployment and are deleted, unless another active deployment has
// since laid claim to the same object. Partial records restore the values
// the deployment replaced, but only where the current value is still the
// one the deployment wrote.
func (s *DesignService) revertRecord(ctx context.Context, store repository.Store, deployment, change domain.Record) error {
	model := change.String("model")
	recordID := change.String("record_id")

	current, err := store.Get(ctx, model, domain.Record{"id": recordID})
	if errors.Is(err, repository.ErrNotFound) {
		// Already gone; nothing to revert.
		return nil
	}
	if err != nil {
		return err
	}

	if change.Bool("full_control") {
		if err := s.guardCrossDeployment(ctx, store, deployment, model, recordID); err != nil {
			return err
		}
		log.Printf("Decommission: deleting %s %s", model, recordID)
		if err := store.Delete(ctx, model, recordID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return nil
	}

	added := change.Map("added")
	removed := change.Map("removed")
	dirty := domain.Record{}
	for key, addedValue := range added {
		if value, ok := domain.RevertValue(current[key], addedValue, removed[key]); ok {
			dirty[key] = value
		}
	}
	for key, removedValue := range removed {
		if _, seen := added[key]; !seen {
			// The deployment cleared this value entirely; put it back.
			dirty[key] = removedValue
		}
	}
	if len(dirty) == 0 {
		return nil
	}
	log.Printf("Decommission: restoring %d field(s) on %s %s", len(dirty), model, recordID)
	_, err = store.Update(ctx, model, recordID, dirty)
	return err
}

// guardCrossDeployment refuses to delete an object that another active
// deployment's change records still reference.
func (s *DesignService) guardCrossDeployment(ctx context.Context, store repository.Store, deployment domain.Record, model, recordID string) error {
	references, err := store.Find(ctx, domain.ModelChangeRecord, domain.Record{
		"model":     model,
		"record_id": recordID,
	})
	if err != nil {
		return err
	}
	for _, ref := range references {
		changeSet, err := store.Get(ctx, domain.ModelChangeSet, domain.Record{"id": ref.String("change_set")})
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		otherID := changeSet.String("deployment")
		if otherID == deployment.ID() {
			continue
		}
		other, err := store.Get(ctx, domain.ModelDeployment, domain.Record{"id": otherID})
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if other.String("status") == string(domain.DeploymentStatusActive) {
			return fmt.Errorf("%s %s is still referenced by active deployment %s",
				model, recordID, other.String("name"))
		}
	}
	return nil
}

// Deployments lists deployments, optionally filtered by status.
func (s *DesignService) Deployments(ctx context.Context, status string) ([]domain.Record, error) {
	query := domain.Record{}
	if status != "" {
		query["status"] = status
	}
	return s.repo.Find(ctx, domain.ModelDeployment, query)
}

// Deployment returns a single deployment with its change sets.
func (s *DesignService) Deployment(ctx context.Context, id string) (domain.Record, []domain.Record, error) {
	deployment, err := s.repo.Get(ctx, domain.ModelDeployment, domain.Record{"id": id})
	if err != nil {
		return nil, nil, err
	}
	changeSets, err := s.repo.Find(ctx, domain.ModelChangeSet, domain.Record{"deployment": id})
	if err != nil {
		return nil, nil, err
	}
	return deployment, changeSets, nil
}

// ChangeRecords returns a change set's records in application order.
func (s *DesignService) ChangeRecords(ctx context.Context, changeSetID string) ([]domain.Record, error) {
	return s.repo.Find(ctx, domain.ModelChangeRecord, domain.Record{"change_set": changeSetID})
}
