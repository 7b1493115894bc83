package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// snapshot is the last open document, written after every change so a
// restarted daemon can pick it up again.
type snapshot struct {
	Path    string `json:"path,omitempty"`
	Dirty   bool   `json:"dirty"`
	Content string `json:"content"`
}

func (d *daemon) snapshotPath() string {
	return filepath.Join(d.profileDir, "snapshot.json")
}

func (d *daemon) writeSnapshot() error {
	st, ok := d.session.Snapshot()
	if !ok {
		return nil
	}
	content, err := d.session.Encode()
	if err != nil {
		return err
	}
	file, err := os.Create(d.snapshotPath())
	if err != nil {
		return err
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot{Path: st.Path, Dirty: st.Dirty, Content: content})
}

func (d *daemon) restoreSnapshot() error {
	data, err := os.ReadFile(d.snapshotPath())
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if err := d.session.Load(snap.Path, snap.Content); err != nil {
		return err
	}
	if snap.Dirty {
		d.session.MarkDirty()
	}
	d.logger.Info().Str("path", snap.Path).Bool("dirty", snap.Dirty).Msg("restored last document")
	return nil
}
