package common

import "errors"

// ErrModulePaused signals that governance halted the module's flows.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module's state transitions are currently
// halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view or an
// empty module name always passes.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a fixed PauseView backed by a map, used by configuration
// driven setups and tests.
type StaticPauses map[string]bool

// IsPaused implements the PauseView interface.
func (s StaticPauses) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s[module]
}
