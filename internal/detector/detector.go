// Package detector derives the created/modified/deleted set between a
// target's previous and current snapshot sets. It is a pure function over
// repository data; it never touches a source database.
package detector

import (
	"sort"

	"github.com/CosmoTheDev/procwatch/internal/objdef"
	"github.com/CosmoTheDev/procwatch/models"
)

// Detect compares two snapshot sets keyed by case-insensitive fullName and
// returns one DetectedChange per created, modified or deleted object, sorted
// by fullName. The caller fills in scan and target fields plus DetectedAt.
//
// An empty previous set yields no changes: a first scan establishes history,
// it does not report the whole database as created.
func Detect(previous, current []models.ObjectSnapshot) []models.DetectedChange {
	if len(previous) == 0 {
		return nil
	}

	prevByKey := make(map[string]models.ObjectSnapshot, len(previous))
	for _, snap := range previous {
		key := objdef.Key(snap.FullName)
		if _, seen := prevByKey[key]; !seen {
			prevByKey[key] = snap
		}
	}

	var changes []models.DetectedChange
	currentKeys := make(map[string]struct{}, len(current))
	for _, snap := range current {
		key := objdef.Key(snap.FullName)
		if _, dup := currentKeys[key]; dup {
			continue
		}
		currentKeys[key] = struct{}{}

		prev, existed := prevByKey[key]
		if !existed {
			hash := snap.DefinitionHash
			changes = append(changes, models.DetectedChange{
				FullName:    snap.FullName,
				ObjectType:  snap.ObjectType,
				ChangeType:  models.ChangeCreated,
				CurrentHash: &hash,
			})
			continue
		}
		if prev.DefinitionHash != snap.DefinitionHash {
			prevHash, currHash := prev.DefinitionHash, snap.DefinitionHash
			changes = append(changes, models.DetectedChange{
				FullName:     snap.FullName,
				ObjectType:   snap.ObjectType,
				ChangeType:   models.ChangeModified,
				PreviousHash: &prevHash,
				CurrentHash:  &currHash,
			})
		}
	}

	for key, snap := range prevByKey {
		if _, present := currentKeys[key]; present {
			continue
		}
		hash := snap.DefinitionHash
		changes = append(changes, models.DetectedChange{
			FullName:     snap.FullName,
			ObjectType:   snap.ObjectType,
			ChangeType:   models.ChangeDeleted,
			PreviousHash: &hash,
		})
	}

	sort.Slice(changes, func(i, j int) bool {
		return objdef.Key(changes[i].FullName) < objdef.Key(changes[j].FullName)
	})
	return changes
}

// Counts tallies a change set by type.
func Counts(changes []models.DetectedChange) (created, modified, deleted int) {
	for _, c := range changes {
		switch c.ChangeType {
		case models.ChangeCreated:
			created++
		case models.ChangeModified:
			modified++
		case models.ChangeDeleted:
			deleted++
		}
	}
	return
}
