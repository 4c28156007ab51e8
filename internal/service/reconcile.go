package service

import (
	"context"
	"errors"
	"log"

	"lodestone/internal/domain"
	"lodestone/internal/repository"
)

// ReconcileDevices merges discovered device records into the store.
// Devices are keyed by primary IP: known devices get their facts
// refreshed, unknown ones are created. Discovery never deletes.
func (s *RecordService) ReconcileDevices(ctx context.Context, source string, devices []domain.Record) error {
	var created, updated int
	for _, device := range devices {
		ip := device.String("primary_ip")
		if ip == "" {
			continue
		}

		existing, err := s.repo.Get(ctx, domain.ModelDevice, domain.Record{"primary_ip": ip})
		switch {
		case errors.Is(err, repository.ErrNotFound):
			if _, err := s.repo.Insert(ctx, domain.ModelDevice, device); err != nil {
				log.Printf("Reconcile %s: creating device %s: %v", source, ip, err)
				continue
			}
			created++
		case err != nil:
			log.Printf("Reconcile %s: looking up device %s: %v", source, ip, err)
			continue
		default:
			facts, err := s.stripDesignOwnedFields(ctx, existing.ID(), device)
			if err != nil {
				log.Printf("Reconcile %s: checking ownership of device %s: %v", source, ip, err)
				continue
			}
			if len(facts) == 0 {
				continue
			}
			if _, err := s.repo.Update(ctx, domain.ModelDevice, existing.ID(), facts); err != nil {
				log.Printf("Reconcile %s: updating device %s: %v", source, ip, err)
				continue
			}
			updated++
		}
	}

	log.Printf("Reconcile %s: %d created, %d updated", source, created, updated)
	s.eventBus.Publish(Event{
		Type: EventDiscoveryCompleted,
		Payload: map[string]any{
			"source":  source,
			"created": created,
			"updated": updated,
		},
	})
	return nil
}

// stripDesignOwnedFields drops fields that an active deployment's change
// records declared for the device. Designs are the source of truth for
// those attributes; discovery only fills in the rest.
func (s *RecordService) stripDesignOwnedFields(ctx context.Context, recordID string, device domain.Record) (domain.Record, error) {
	changes, err := s.repo.Find(ctx, domain.ModelChangeRecord, domain.Record{
		"model":     domain.ModelDevice,
		"record_id": recordID,
	})
	if err != nil {
		return nil, err
	}

	facts := device.Clone()
	for _, change := range changes {
		changeSet, err := s.repo.Get(ctx, domain.ModelChangeSet, domain.Record{"id": change.String("change_set")})
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		deployment, err := s.repo.Get(ctx, domain.ModelDeployment, domain.Record{"id": changeSet.String("deployment")})
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if deployment.String("status") != string(domain.DeploymentStatusActive) {
			continue
		}
		for key := range change.Map("added") {
			delete(facts, key)
		}
	}
	return facts, nil
}

// ActivePrefixes returns the CIDRs of prefixes whose status is Active, the
// scan targets for discovery.
func (s *RecordService) ActivePrefixes(ctx context.Context) ([]string, error) {
	active, err := s.repo.Get(ctx, domain.ModelStatus, domain.Record{"name": "Active"})
	if err != nil {
		return nil, err
	}
	prefixes, err := s.repo.Find(ctx, domain.ModelPrefix, domain.Record{"status": active.ID()})
	if err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		targets = append(targets, p.String("prefix"))
	}
	return targets, nil
}

// KnownDevices returns devices that have a primary IP to probe.
func (s *RecordService) KnownDevices(ctx context.Context) ([]domain.Record, error) {
	devices, err := s.repo.Find(ctx, domain.ModelDevice, nil)
	if err != nil {
		return nil, err
	}
	out := devices[:0]
	for _, d := range devices {
		if d.String("primary_ip") != "" {
			out = append(out, d)
		}
	}
	return out, nil
}
