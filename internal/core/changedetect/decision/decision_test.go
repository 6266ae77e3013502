package decision

import (
	"net/http"
	"testing"
	"time"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"
)

func TestPass1UnchangedResourceProducesNoPatch(t *testing.T) {
	r := domain.ResourceRecord{
		ResourceID: "r1", HasStoredHash: true, StoredHash: "etag-1",
		HasStoredSize: true, StoredSize: 100,
	}
	p := domain.ProbeOutcome{
		Status: domain.Status(http.StatusOK), Digest: "etag-1", HasDigest: true,
		Size: 100, HasSize: true,
	}

	res := Pass1(r, p)
	if res.EnqueueGET {
		t.Fatalf("did not expect an unchanged ETag to enqueue a GET")
	}
	if !res.Patch.IsEmpty() {
		t.Fatalf("expected empty patch for unchanged resource, got %+v", res.Patch)
	}
	if res.Row.Update != "N" {
		t.Fatalf("Update = %q, want N", res.Row.Update)
	}
}

func TestPass1ETagChangeProducesHashPatch(t *testing.T) {
	r := domain.ResourceRecord{ResourceID: "r1", HasStoredHash: true, StoredHash: "old-etag"}
	p := domain.ProbeOutcome{Status: domain.Status(http.StatusOK), Digest: "new-etag", HasDigest: true}

	res := Pass1(r, p)
	if res.EnqueueGET {
		t.Fatalf("an ETag change alone should not require a GET")
	}
	if !res.Patch.HasHash || res.Patch.Hash != "new-etag" {
		t.Fatalf("expected a hash patch with the new etag, got %+v", res.Patch)
	}
	if res.Row.ETagChanged != "Y" {
		t.Fatalf("ETagChanged = %q, want Y", res.Row.ETagChanged)
	}
}

func TestPass1ForbiddenEnqueuesGET(t *testing.T) {
	r := domain.ResourceRecord{ResourceID: "r1"}
	p := domain.ProbeOutcome{Status: domain.Status(http.StatusForbidden)}

	res := Pass1(r, p)
	if !res.EnqueueGET {
		t.Fatalf("expected HTTP 403 to enqueue a GET, not set broken")
	}
	if !res.Patch.IsEmpty() {
		t.Fatalf("expected no patch on the enqueue path, got %+v", res.Patch)
	}
}

func TestPass1GoneSetsBroken(t *testing.T) {
	r := domain.ResourceRecord{ResourceID: "r1", StoredBroken: false}
	p := domain.ProbeOutcome{Status: domain.Status(http.StatusGone)}

	res := Pass1(r, p)
	if res.EnqueueGET {
		t.Fatalf("410 is not in the enqueue set, should not trigger a GET")
	}
	if !res.Patch.HasBroken || !res.Patch.BrokenLink {
		t.Fatalf("expected a broken-link patch, got %+v", res.Patch)
	}
	if res.Row.SetBroken != "Y" {
		t.Fatalf("SetBroken = %q, want Y", res.Row.SetBroken)
	}
}

func TestPass1AlreadyBrokenDoesNotRePatch(t *testing.T) {
	r := domain.ResourceRecord{ResourceID: "r1", StoredBroken: true}
	p := domain.ProbeOutcome{Status: domain.Status(http.StatusGone)}

	res := Pass1(r, p)
	if res.Patch.HasBroken {
		t.Fatalf("expected no patch when the resource is already marked broken")
	}
}

func TestPass2NewHashNoUpstreamModifiedUsesToday(t *testing.T) {
	today := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	r := domain.ResourceRecord{ResourceID: "r1", StoredHash: "old-hash"}
	q := domain.ProbeOutcome{Status: domain.StatusHashed, Digest: "new-hash", HasDigest: true}
	row := domain.AuditRow{ResourceID: "r1"}

	row, patch := Pass2(r, q, row, today)

	if row.HashChanged != "Y" {
		t.Fatalf("HashChanged = %q, want Y", row.HashChanged)
	}
	if !patch.HasHash || patch.Hash != "new-hash" {
		t.Fatalf("expected a hash patch, got %+v", patch)
	}
	if row.ModifiedValue != "today" {
		t.Fatalf("ModifiedValue = %q, want today", row.ModifiedValue)
	}
	if !patch.HasModified || patch.LastModified != today.Format(isoNoTZ) {
		t.Fatalf("expected last_modified patched to today, got %+v", patch)
	}
}

func TestPass2SizeMismatchIsAuditOnly(t *testing.T) {
	today := time.Now().UTC()
	r := domain.ResourceRecord{ResourceID: "r1"}
	q := domain.ProbeOutcome{Status: domain.StatusSizeMismatch}
	row := domain.AuditRow{ResourceID: "r1"}

	row, patch := Pass2(r, q, row, today)

	if !patch.IsEmpty() {
		t.Fatalf("validation-only statuses must never set broken or patch anything, got %+v", patch)
	}
	if row.GetStatus != "SIZE != HTTP SIZE" {
		t.Fatalf("GetStatus = %q, want the fixed symbolic label", row.GetStatus)
	}
}

func TestPass2NeverMovesTimestampWithoutContentChange(t *testing.T) {
	today := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	stored := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := domain.ResourceRecord{
		ResourceID: "r1", StoredHash: "same-hash",
		HasStoredModified: true, StoredLastModified: stored,
	}
	// same hash, but a newer Last-Modified header: must not move the
	// stored timestamp because content did not change.
	q := domain.ProbeOutcome{
		Status: domain.StatusHashed, Digest: "same-hash", HasDigest: true,
		LastModified: "Wed, 29 Jul 2026 00:00:00 GMT",
	}
	row := domain.AuditRow{ResourceID: "r1"}

	row, patch := Pass2(r, q, row, today)

	if row.HashChanged != "N" {
		t.Fatalf("HashChanged = %q, want N", row.HashChanged)
	}
	if patch.HasModified {
		t.Fatalf("expected no last_modified patch when content is unchanged, got %+v", patch)
	}
}

func TestPass2ServerErrorClassSetsBroken(t *testing.T) {
	today := time.Now().UTC()
	r := domain.ResourceRecord{ResourceID: "r1"}
	q := domain.ProbeOutcome{Status: domain.StatusTransportFailure}
	row := domain.AuditRow{ResourceID: "r1"}

	row, patch := Pass2(r, q, row, today)
	if !patch.HasBroken || !patch.BrokenLink {
		t.Fatalf("expected a broken-link patch for an unspecified server error, got %+v", patch)
	}
	if row.SetBroken != "Y" {
		t.Fatalf("SetBroken = %q, want Y", row.SetBroken)
	}
}

func TestPass2ETagShortCircuitUsesETagColumnsNotHash(t *testing.T) {
	today := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	r := domain.ResourceRecord{ResourceID: "r1", HasStoredHash: true, StoredHash: "old-etag"}
	q := domain.ProbeOutcome{
		Status: domain.Status(http.StatusOK), Digest: "new-etag", HasDigest: true,
	}
	row := domain.AuditRow{ResourceID: "r1"}

	row, patch := Pass2(r, q, row, today)

	if row.NewETag != "new-etag" {
		t.Fatalf("NewETag = %q, want new-etag", row.NewETag)
	}
	if row.ETagChanged != "Y" {
		t.Fatalf("ETagChanged = %q, want Y", row.ETagChanged)
	}
	if row.NewHash != "" || row.HashChanged != "" {
		t.Fatalf("expected the Hash columns to stay blank on a GET-phase ETag short-circuit, got NewHash=%q HashChanged=%q", row.NewHash, row.HashChanged)
	}
	if !patch.HasHash || patch.Hash != "new-etag" {
		t.Fatalf("expected a hash patch carrying the new etag, got %+v", patch)
	}
}

func TestPass2ETagShortCircuitUnchangedUsesETagColumns(t *testing.T) {
	today := time.Now().UTC()
	r := domain.ResourceRecord{ResourceID: "r1", HasStoredHash: true, StoredHash: "same-etag"}
	q := domain.ProbeOutcome{
		Status: domain.Status(http.StatusOK), Digest: "same-etag", HasDigest: true,
	}
	row := domain.AuditRow{ResourceID: "r1"}

	row, patch := Pass2(r, q, row, today)

	if row.ETagChanged != "N" {
		t.Fatalf("ETagChanged = %q, want N", row.ETagChanged)
	}
	if row.NewHash != "" || row.HashChanged != "" {
		t.Fatalf("expected the Hash columns to stay blank on a GET-phase ETag short-circuit, got NewHash=%q HashChanged=%q", row.NewHash, row.HashChanged)
	}
	if patch.HasHash {
		t.Fatalf("expected no hash patch when the etag is unchanged, got %+v", patch)
	}
}

func TestPass2TooManyRequestsIsAuditOnly(t *testing.T) {
	today := time.Now().UTC()
	r := domain.ResourceRecord{ResourceID: "r1"}
	q := domain.ProbeOutcome{Status: domain.Status(http.StatusTooManyRequests)}
	row := domain.AuditRow{ResourceID: "r1"}

	_, patch := Pass2(r, q, row, today)
	if !patch.IsEmpty() {
		t.Fatalf("429 must never set broken or patch, got %+v", patch)
	}
}
