// Package layout writes and reads complete redundant GPT layouts through a
// whole-device stream.
package layout

import (
	"fmt"
)

// State tracks how far a layout write has progressed. States are entered
// strictly in declaration order.
type State int

const (
	StateUnwritten State = iota
	StatePrimaryWritten
	StateEntriesWritten
	StateBackupWritten
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateUnwritten:
		return "unwritten"
	case StatePrimaryWritten:
		return "primary-written"
	case StateEntriesWritten:
		return "entries-written"
	case StateBackupWritten:
		return "backup-written"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Step names one write of the layout sequence
type Step string

const (
	StepProtectiveMBR  Step = "protective MBR"
	StepPrimaryHeader  Step = "primary header"
	StepPrimaryEntries Step = "primary entry array"
	StepBackupEntries  Step = "backup entry array"
	StepBackupHeader   Step = "backup header"
	StepFlush          Step = "flush"
)

// StepError reports the step that failed and the state the device was left in.
// Nothing is rolled back.
type StepError struct {
	Step  Step
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("writing %s failed with the layout %s: %v", e.Step, e.State, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
