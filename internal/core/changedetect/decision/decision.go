// Package decision implements the reconciliation decision engine (C6):
// two passes over probe outcomes that compare against stored catalog
// metadata and emit audit rows, revision patches, and the phase-1 to
// phase-2 worklist handoff.
package decision

import (
	"net/http"
	"strconv"
	"time"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"
)

// headEnqueueStatuses is the set of HEAD statuses that force a GET
// regardless of other signals (spec.md §4.6.1 step 3): the server may
// refuse HEAD or is rate-limiting, so phase 2 is required to decide.
var headEnqueueStatuses = map[int]struct{}{
	403: {}, 405: {}, 408: {}, 409: {}, 429: {},
}

// Result is what one pass-1 (HEAD) evaluation yields for a resource.
type Result struct {
	Row            domain.AuditRow
	Patch          domain.Patch
	EnqueueGET     bool
}

// Pass1 evaluates a HEAD outcome against the stored record.
func Pass1(r domain.ResourceRecord, p domain.ProbeOutcome) Result {
	row := domain.AuditRow{ResourceID: r.ResourceID}
	row.ExistingHash = yn(r.HasStoredHash)
	row.ExistingModified = yn(r.HasStoredModified)
	row.ExistingSize = yn(r.HasStoredSize)
	row.ExistingBroken = yn(r.StoredBroken)

	row.HeadStatus = headSymbolicName(p.Status)

	if p.Status != domain.Status(http.StatusOK) {
		if _, enqueue := headEnqueueStatuses[int(p.Status)]; enqueue {
			return Result{Row: row, EnqueueGET: true}
		}

		var patch domain.Patch
		if !r.StoredBroken {
			patch.BrokenLink, patch.HasBroken = true, true
			row.SetBroken = "Y"
		}
		return Result{Row: row, Patch: patch}
	}

	var patch domain.Patch
	getResource := false

	// ETag comparison
	if p.HasDigest {
		row.NewETag = p.Digest
		if p.Digest != r.StoredHash {
			patch.Hash, patch.HasHash = p.Digest, true
			row.ETagChanged = "Y"
		} else {
			row.ETagChanged = "N"
		}
	} else {
		getResource = true
	}

	// Size comparison
	if p.HasSize {
		row.NewSize = itoa(p.Size)
		if p.Size != r.StoredSize {
			if !patch.IsEmpty() {
				patch.Size, patch.HasSize = p.Size, true
				row.SizeChanged = "Y"
			} else {
				getResource = true
			}
		} else {
			row.SizeChanged = "N"
		}
	}

	// Last-Modified comparison
	if parsed, ok := parseHTTPDate(p.LastModified); ok {
		row.NewModified = parsed.UTC().Format(isoNoTZ)
		switch {
		case !r.HasStoredModified || parsed.After(r.StoredLastModified):
			row.ModifiedNewer = "Y"
			if !patch.IsEmpty() {
				patch.LastModified, patch.HasModified = parsed.UTC().Format(isoNoTZ), true
				row.ModifiedChanged = "Y"
			} else {
				getResource = true
			}
		case parsed.Before(r.StoredLastModified):
			row.ModifiedNewer = "N"
			row.ModifiedChanged = "N"
		default:
			row.ModifiedNewer = "N"
			row.ModifiedChanged = "N"
		}
	}

	if getResource {
		return Result{Row: row, EnqueueGET: true}
	}

	if !patch.IsEmpty() {
		row.Update = "Y"
		return Result{Row: row, Patch: patch}
	}
	row.Update = "N"
	return Result{Row: row}
}

// Pass2 evaluates a GET outcome against the stored record and the
// pass-1 audit row (carried forward and augmented in place).
func Pass2(r domain.ResourceRecord, q domain.ProbeOutcome, row domain.AuditRow, today time.Time) (domain.AuditRow, domain.Patch) {
	row.GetStatus = getSymbolicName(q.Status)

	var patch domain.Patch
	update := false
	hashChanged := false

	switch {
	case q.Status <= -100:
		// unspecified server error class
		if !r.StoredBroken {
			patch.BrokenLink, patch.HasBroken = true, true
			row.SetBroken = "Y"
		}
	case q.Status < 0:
		// validation failures (-1, -2, -3, -11): audit only, never broken
	case q.Status.IsHTTP() && int(q.Status) != http.StatusOK && int(q.Status) != http.StatusTooManyRequests:
		if !r.StoredBroken {
			patch.BrokenLink, patch.HasBroken = true, true
			row.SetBroken = "Y"
		}
	case int(q.Status) == http.StatusTooManyRequests:
		// audit only
	}

	reached := q.Status == domain.StatusHashed || int(q.Status) == http.StatusOK ||
		q.Status == domain.StatusMimetypeMismatch || q.Status == domain.StatusSignatureMismatch ||
		q.Status == domain.StatusSizeMismatch

	if reached && q.HasDigest {
		isETag := int(q.Status) == http.StatusOK

		if q.Digest != r.StoredHash {
			patch.Hash, patch.HasHash = q.Digest, true
			hashChanged = true
			update = true
		}
		if isETag {
			row.NewETag = q.Digest
			row.ETagChanged = yn(hashChanged)
		} else {
			row.NewHash = q.Digest
			row.HashChanged = yn(hashChanged)
		}

		if q.HasSize {
			row.NewSize = itoa(q.Size)
			if q.Size != r.StoredSize {
				patch.Size, patch.HasSize = q.Size, true
				row.SizeChanged = "Y"
				update = true
			} else {
				row.SizeChanged = "N"
			}
		}

		if parsed, ok := parseHTTPDate(q.LastModified); ok {
			row.NewModified = parsed.UTC().Format(isoNoTZ)
			newer := !r.HasStoredModified || parsed.After(r.StoredLastModified)
			if newer {
				row.ModifiedNewer = "Y"
				if hashChanged {
					update = true
				}
			} else {
				row.ModifiedNewer = "N"
			}
		}
	}

	if update {
		row.Update = "Y"

		resolved, usedToday := resolveLastModified(r, q, today)
		if usedToday {
			row.ModifiedValue = "today"
		} else {
			row.ModifiedValue = "http"
		}

		if hashChanged {
			storedISO := ""
			if r.HasStoredModified {
				storedISO = r.StoredLastModified.UTC().Format(isoNoTZ)
			}
			if resolved != storedISO {
				patch.LastModified, patch.HasModified = resolved, true
			}
		}
	} else if row.Update == "" {
		row.Update = "N"
	}

	return row, patch
}

// resolveLastModified implements spec.md §4.6.2 step 4.
func resolveLastModified(r domain.ResourceRecord, q domain.ProbeOutcome, today time.Time) (iso string, usedToday bool) {
	parsed, ok := parseHTTPDate(q.LastModified)
	if !ok || (r.HasStoredModified && !parsed.After(r.StoredLastModified)) {
		latest := today.UTC()
		if r.HasStoredModified && r.StoredLastModified.UTC().After(latest) {
			latest = r.StoredLastModified.UTC()
		}
		return latest.Format(isoNoTZ), latest.Equal(today.UTC())
	}
	return parsed.UTC().Format(isoNoTZ), false
}

const isoNoTZ = "2006-01-02T15:04:05"

func parseHTTPDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func headSymbolicName(s domain.Status) string {
	if int(s) == http.StatusOK {
		return "OK"
	}
	return s.SymbolicName()
}

func getSymbolicName(s domain.Status) string {
	if int(s) == http.StatusOK {
		return "OK"
	}
	if s == domain.StatusHashed {
		return "OK"
	}
	return s.SymbolicName()
}
