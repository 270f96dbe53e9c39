package enlistment

import (
	"encoding/json"
	"fmt"
	"time"
)

// SaveVersion is the current save format version.
const SaveVersion = 1

// SaveData is the JSON save format for a service record.
type SaveData struct {
	Version int       `json:"version"`
	State   State     `json:"state"`
	SavedAt time.Time `json:"saved_at"`
}

// Save serializes the record as it stands.
func (e *Engine) Save() ([]byte, error) {
	data := SaveData{
		Version: SaveVersion,
		State:   e.state.Clone(),
		SavedAt: e.Now(),
	}
	return json.Marshal(data)
}

// DecodeSave parses save data without applying it.
func DecodeSave(data []byte) (*SaveData, error) {
	var sd SaveData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("failed to parse save data: %w", err)
	}
	if sd.Version < 1 || sd.Version > SaveVersion {
		return nil, fmt.Errorf("unsupported save version %d", sd.Version)
	}
	return &sd, nil
}

// Restore replaces the record with saved data. Sub-flags that only make sense
// mid-session are dropped: the reserve flag always, grace protection unless
// the save is a discharged record whose window is still open. Any remaining
// inconsistency is repaired and reported as an anomaly.
func (e *Engine) Restore(data []byte) error {
	sd, err := DecodeSave(data)
	if err != nil {
		e.logger.Error("Failed to restore enlistment", "error", err)
		return err
	}

	loaded := sd.State
	if loaded.WaitingInReserve {
		e.logger.Debug("Dropping reserve flag from save")
		loaded.WaitingInReserve = false
	}
	if loaded.Status != StatusDischarged || !loaded.HasActiveGraceProtection(e.Now()) {
		loaded.GraceProtectionUntil = time.Time{}
	}

	old := e.state.Status
	*e.state = loaded
	e.Reconcile()

	e.logger.Info("Enlistment restored",
		"status", e.state.Status,
		"tier", e.state.Tier,
		"lord", lordName(e.state.Lord),
		"saved_at", sd.SavedAt)

	if old != e.state.Status && e.listener != nil {
		e.listener.OnStatusChanged(StatusChange{
			Old:  old,
			New:  e.state.Status,
			Lord: e.state.Lord.clone(),
			At:   e.Now(),
		})
	}
	return nil
}
