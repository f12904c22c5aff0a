package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gluk-w/shellbridge/internal/database"
	"github.com/gluk-w/shellbridge/internal/orchestrator"
	"gorm.io/gorm"
)

// syncInstances refreshes the lifecycle state of every instance the database
// still considers active. Instances EC2 no longer reports are marked
// terminated.
func syncInstances(ctx context.Context) {
	orch := orchestrator.Get()
	if orch == nil {
		return
	}

	active, err := database.ListActiveInstances()
	if err != nil {
		log.Printf("[sync] failed to list active instances: %v", err)
		return
	}
	if len(active) == 0 {
		return
	}

	ids := make([]string, 0, len(active))
	for _, inst := range active {
		ids = append(ids, inst.InstanceID)
	}

	described, err := orch.DescribeInstances(ctx, ids)
	if err != nil {
		log.Printf("[sync] describe %d instances: %v", len(ids), err)
		return
	}

	seen := make(map[string]bool, len(described))
	updated := 0
	for _, inst := range described {
		seen[inst.ID] = true
		if err := database.UpdateInstanceState(inst.ID, inst.State, inst.PublicIP, inst.PublicDNS); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("[sync] update %s: %v", inst.ID, err)
			}
			continue
		}
		updated++
	}

	gone := 0
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if err := database.MarkInstanceTerminated(id); err != nil {
			log.Printf("[sync] mark %s terminated: %v", id, err)
			continue
		}
		gone++
	}

	if err := database.SetSetting(database.SettingLastInstanceSync, time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Printf("[sync] failed to record sync time: %v", err)
	}
	log.Printf("[sync] refreshed %d instances, %d no longer exist", updated, gone)
}
