package gpt

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

func codes(r *ValidationReport) []IssueCode {
	out := make([]IssueCode, 0, len(r.Issues))
	for _, i := range r.Issues {
		out = append(out, i.Code)
	}
	return out
}

func TestValidateEntries(t *testing.T) {
	header, err := NewDefaultHeader(1_000_000, 512, testDiskGUID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func([]types.GPTEntry) []types.GPTEntry
		want    []IssueCode
		flagged []int
	}{
		{
			name:   "valid entries",
			mutate: func(e []types.GPTEntry) []types.GPTEntry { return e },
		},
		{
			name: "duplicate unique GUID",
			mutate: func(e []types.GPTEntry) []types.GPTEntry {
				e[1].UniqueGUID = e[0].UniqueGUID
				return e
			},
			want:    []IssueCode{IssueDuplicateGUID},
			flagged: []int{1},
		},
		{
			name: "first LBA after last LBA",
			mutate: func(e []types.GPTEntry) []types.GPTEntry {
				e[0].FirstLBA, e[0].LastLBA = 5000, 4000
				return e
			},
			want:    []IssueCode{IssueInvertedRange},
			flagged: []int{0},
		},
		{
			name: "outside usable range",
			mutate: func(e []types.GPTEntry) []types.GPTEntry {
				e[0].FirstLBA = 10
				return e
			},
			want:    []IssueCode{IssueOutsideUsable},
			flagged: []int{0},
		},
		{
			name: "overlap",
			mutate: func(e []types.GPTEntry) []types.GPTEntry {
				e[1].FirstLBA = 206847
				return e
			},
			want:    []IssueCode{IssueOverlap},
			flagged: []int{1},
		},
		{
			name: "name too long",
			mutate: func(e []types.GPTEntry) []types.GPTEntry {
				e[0].Name = strings.Repeat("n", 37)
				return e
			},
			want:    []IssueCode{IssueNameTooLong},
			flagged: []int{0},
		},
		{
			name: "unused type",
			mutate: func(e []types.GPTEntry) []types.GPTEntry {
				e[1].TypeGUID = uuid.Nil
				return e
			},
			want:    []IssueCode{IssueUnusedType},
			flagged: []int{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arr := types.NewEntryArray()
			arr.Entries = tt.mutate(sampleEntries())

			report := ValidateEntries(arr, header)
			if len(tt.want) == 0 {
				assert.True(t, report.Valid(), "issues: %v", report.Issues)
				assert.NoError(t, report.Err())
				return
			}

			assert.ElementsMatch(t, tt.want, codes(report))
			for _, slot := range tt.flagged {
				assert.True(t, report.Flagged(slot), "slot %d should be flagged", slot)
			}
			err := report.Err()
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.KindInvalidFormat))
		})
	}
}

func TestValidateEntries_WithoutHeader(t *testing.T) {
	arr := types.NewEntryArray()
	arr.Entries = sampleEntries()
	arr.Entries[0].FirstLBA = 1

	report := ValidateEntries(arr, nil)
	assert.True(t, report.Valid())
}

func TestValidateEntries_TooMany(t *testing.T) {
	arr := &types.EntryArray{Count: 1, EntrySize: 128, Entries: sampleEntries()}
	report := ValidateEntries(arr, nil)
	assert.Contains(t, codes(report), IssueTooManyEntries)
	assert.False(t, report.Flagged(-1))
}

func TestValidateEntries_EnclosingRange(t *testing.T) {
	arr := types.NewEntryArray()
	arr.Entries = []types.GPTEntry{
		{TypeGUID: types.PartitionTypeLinuxLVM, UniqueGUID: uuid.New(), FirstLBA: 100, LastLBA: 1000},
		{TypeGUID: types.PartitionTypeLinuxFilesystem, UniqueGUID: uuid.New(), FirstLBA: 200, LastLBA: 300},
		{TypeGUID: types.PartitionTypeLinuxSwap, UniqueGUID: uuid.New(), FirstLBA: 400, LastLBA: 500},
		{TypeGUID: types.PartitionTypeLinuxRAID, UniqueGUID: uuid.New(), FirstLBA: 1001, LastLBA: 1100},
	}

	report := ValidateEntries(arr, nil)
	assert.Equal(t, []IssueCode{IssueOverlap, IssueOverlap}, codes(report))
	assert.False(t, report.Flagged(0))
	assert.True(t, report.Flagged(1))
	assert.True(t, report.Flagged(2))
	assert.False(t, report.Flagged(3))
	assert.Contains(t, report.Issues[1].Message, "overlaps slot 0")
}
