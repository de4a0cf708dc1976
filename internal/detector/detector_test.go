package detector

import (
	"reflect"
	"testing"

	"github.com/CosmoTheDev/procwatch/models"
)

func snap(fullName, hash string) models.ObjectSnapshot {
	return models.ObjectSnapshot{
		FullName:       fullName,
		ObjectType:     models.KindProcedure,
		DefinitionHash: hash,
	}
}

func TestDetectFirstScanEmitsNothing(t *testing.T) {
	current := []models.ObjectSnapshot{snap("dbo.A", "h1"), snap("dbo.B", "h2")}
	if changes := Detect(nil, current); len(changes) != 0 {
		t.Fatalf("expected no changes on first scan, got %d", len(changes))
	}
}

func TestDetectCreateModifyDelete(t *testing.T) {
	previous := []models.ObjectSnapshot{snap("dbo.A", "h1"), snap("dbo.B", "h2"), snap("dbo.D", "h5")}
	current := []models.ObjectSnapshot{snap("dbo.A", "h1"), snap("dbo.B", "h3"), snap("dbo.C", "h4")}

	changes := Detect(previous, current)
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d: %+v", len(changes), changes)
	}

	byName := make(map[string]models.DetectedChange, len(changes))
	for _, c := range changes {
		byName[c.FullName] = c
	}

	b := byName["dbo.B"]
	if b.ChangeType != models.ChangeModified || *b.PreviousHash != "h2" || *b.CurrentHash != "h3" {
		t.Errorf("dbo.B: got %+v", b)
	}
	c := byName["dbo.C"]
	if c.ChangeType != models.ChangeCreated || c.PreviousHash != nil || *c.CurrentHash != "h4" {
		t.Errorf("dbo.C: got %+v", c)
	}
	d := byName["dbo.D"]
	if d.ChangeType != models.ChangeDeleted || *d.PreviousHash != "h5" || d.CurrentHash != nil {
		t.Errorf("dbo.D: got %+v", d)
	}
	if _, unchanged := byName["dbo.A"]; unchanged {
		t.Errorf("dbo.A should not appear in changes")
	}
}

func TestDetectCaseInsensitiveKeys(t *testing.T) {
	previous := []models.ObjectSnapshot{snap("dbo.GetOrders", "h1")}
	current := []models.ObjectSnapshot{snap("DBO.GETORDERS", "h1")}

	if changes := Detect(previous, current); len(changes) != 0 {
		t.Fatalf("case-only rename with equal hash must not emit changes: %+v", changes)
	}

	current[0].DefinitionHash = "h2"
	changes := Detect(previous, current)
	if len(changes) != 1 || changes[0].ChangeType != models.ChangeModified {
		t.Fatalf("expected one modification, got %+v", changes)
	}
	// First-seen case within the current set is preserved.
	if changes[0].FullName != "DBO.GETORDERS" {
		t.Errorf("expected current-set casing, got %q", changes[0].FullName)
	}
}

func TestDetectIdempotent(t *testing.T) {
	previous := []models.ObjectSnapshot{snap("dbo.A", "h1"), snap("dbo.B", "h2")}
	current := []models.ObjectSnapshot{snap("dbo.B", "h9"), snap("dbo.C", "h4")}

	first := Detect(previous, current)
	second := Detect(previous, current)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("detection is not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestDetectOutputSortedByName(t *testing.T) {
	previous := []models.ObjectSnapshot{snap("dbo.Z", "h1"), snap("dbo.A", "h2")}
	current := []models.ObjectSnapshot{snap("dbo.Z", "h3"), snap("dbo.A", "h4"), snap("dbo.M", "h5")}

	changes := Detect(previous, current)
	for i := 1; i < len(changes); i++ {
		if changes[i-1].FullName > changes[i].FullName {
			t.Fatalf("changes not sorted: %+v", changes)
		}
	}
}

func TestCounts(t *testing.T) {
	previous := []models.ObjectSnapshot{snap("dbo.A", "h1"), snap("dbo.B", "h2")}
	current := []models.ObjectSnapshot{snap("dbo.B", "h9"), snap("dbo.C", "h4")}

	created, modified, deleted := Counts(Detect(previous, current))
	if created != 1 || modified != 1 || deleted != 1 {
		t.Fatalf("got created=%d modified=%d deleted=%d", created, modified, deleted)
	}
}
