package gpt

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"

	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// IssueCode identifies the rule an entry broke.
type IssueCode string

const (
	IssueDuplicateGUID  IssueCode = "duplicate-unique-guid"
	IssueInvertedRange  IssueCode = "first-lba-after-last-lba"
	IssueOutsideUsable  IssueCode = "outside-usable-range"
	IssueOverlap        IssueCode = "overlapping-entries"
	IssueNameTooLong    IssueCode = "name-too-long"
	IssueUnusedType     IssueCode = "unused-type-guid"
	IssueTooManyEntries IssueCode = "too-many-entries"
)

// Issue describes one problem found in an entry array.
type Issue struct {
	Code IssueCode
	// Slot is the index of the offending entry in the array, or -1 for array-level issues.
	Slot    int
	Message string
}

func (i Issue) String() string {
	if i.Slot < 0 {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("slot %d: %s: %s", i.Slot, i.Code, i.Message)
}

// ValidationReport collects every issue found in an entry array.
type ValidationReport struct {
	Issues []Issue
	// flagged marks the slots that carry at least one issue.
	flagged *bitset.BitSet
}

// Valid reports whether no issues were found.
func (r *ValidationReport) Valid() bool {
	return len(r.Issues) == 0
}

// Flagged reports whether the entry in slot has at least one issue.
func (r *ValidationReport) Flagged(slot int) bool {
	return slot >= 0 && r.flagged.Test(uint(slot))
}

// Err returns nil for a valid report, otherwise an InvalidFormat error joining every issue.
func (r *ValidationReport) Err() error {
	if r.Valid() {
		return nil
	}
	errs := make([]error, 0, len(r.Issues))
	for _, issue := range r.Issues {
		errs = append(errs, errors.New(issue.String()))
	}
	return types.NewError(types.KindInvalidFormat, "validate entries", fmt.Sprintf("%d issue(s)", len(r.Issues)), errors.Join(errs...))
}

func (r *ValidationReport) add(code IssueCode, slot int, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Code: code, Slot: slot, Message: fmt.Sprintf(format, args...)})
	if slot >= 0 {
		r.flagged.Set(uint(slot))
	}
}

// ValidateEntries checks an entry array built in memory before it is written.
// Header may be nil, in which case the usable-range check is skipped.
func ValidateEntries(arr *types.EntryArray, header *types.GPTHeader) *ValidationReport {
	report := &ValidationReport{flagged: bitset.New(uint(len(arr.Entries)))}

	if arr.Count > 0 && len(arr.Entries) > int(arr.Count) {
		report.add(IssueTooManyEntries, -1, "%d entries exceed %d slots", len(arr.Entries), arr.Count)
	}

	seen := make(map[uuid.UUID]int, len(arr.Entries))
	for slot, e := range arr.Entries {
		if e.TypeGUID == uuid.Nil {
			report.add(IssueUnusedType, slot, "type GUID is all zero")
		}
		if e.FirstLBA > e.LastLBA {
			report.add(IssueInvertedRange, slot, "first LBA %d is after last LBA %d", e.FirstLBA, e.LastLBA)
		}
		if prev, ok := seen[e.UniqueGUID]; ok {
			report.add(IssueDuplicateGUID, slot, "unique GUID %s already used by slot %d", e.UniqueGUID, prev)
		} else {
			seen[e.UniqueGUID] = slot
		}
		if n := NameUnits(e.Name); n > types.GPTMaxNameUnits {
			report.add(IssueNameTooLong, slot, "name is %d UTF-16 code units, limit is %d", n, types.GPTMaxNameUnits)
		}
		if header != nil && e.FirstLBA <= e.LastLBA &&
			(e.FirstLBA < header.FirstUsableLBA || e.LastLBA > header.LastUsableLBA) {
			report.add(IssueOutsideUsable, slot, "range %d-%d is outside usable range %d-%d",
				e.FirstLBA, e.LastLBA, header.FirstUsableLBA, header.LastUsableLBA)
		}
	}

	checkOverlaps(arr, report)

	return report
}

func checkOverlaps(arr *types.EntryArray, report *ValidationReport) {
	slots := make([]int, 0, len(arr.Entries))
	for slot, e := range arr.Entries {
		if e.FirstLBA <= e.LastLBA {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		return arr.Entries[slots[i]].FirstLBA < arr.Entries[slots[j]].FirstLBA
	})

	// reach is the sorted slot with the highest LastLBA seen so far
	reach := -1
	for _, slot := range slots {
		cur := arr.Entries[slot]
		if reach >= 0 {
			prev := arr.Entries[reach]
			if cur.FirstLBA <= prev.LastLBA {
				report.add(IssueOverlap, slot, "range %d-%d overlaps slot %d (%d-%d)",
					cur.FirstLBA, cur.LastLBA, reach, prev.FirstLBA, prev.LastLBA)
			}
		}
		if reach < 0 || cur.LastLBA > arr.Entries[reach].LastLBA {
			reach = slot
		}
	}
}
