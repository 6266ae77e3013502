package planner

import (
	"testing"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"
)

func TestAddSkipsEmptyPatch(t *testing.T) {
	a := New()
	a.Add("ds1", "r1", domain.Patch{})

	plan := a.Plan()
	if len(plan) != 0 {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
}

func TestAddGroupsByDataset(t *testing.T) {
	a := New()
	a.Add("ds1", "r1", domain.Patch{Hash: "h1", HasHash: true})
	a.Add("ds1", "r2", domain.Patch{Hash: "h2", HasHash: true})
	a.Add("ds2", "r3", domain.Patch{BrokenLink: true, HasBroken: true})

	plan := a.Plan()
	if len(plan) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(plan))
	}
	if len(plan["ds1"].UpdateResources) != 2 {
		t.Fatalf("expected 2 resources under ds1, got %d", len(plan["ds1"].UpdateResources))
	}
	if !plan["ds2"].UpdateResources["r3"].BrokenLink {
		t.Fatalf("expected r3's patch to carry BrokenLink")
	}
}

func TestAddLastPatchWinsPerResource(t *testing.T) {
	a := New()
	a.Add("ds1", "r1", domain.Patch{Hash: "first", HasHash: true})
	a.Add("ds1", "r1", domain.Patch{Hash: "second", HasHash: true})

	plan := a.Plan()
	got := plan["ds1"].UpdateResources["r1"]
	if got.Hash != "second" {
		t.Fatalf("Hash = %q, want last-patch-wins value %q", got.Hash, "second")
	}
}
