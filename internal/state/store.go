// Package state persists per-asset processing status, artifact delivery
// state, the remote caption ledger, and run history in SQLite, plus the
// flat failed-list file consumed by --retry-failed.
package state

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrInvalidTransition is returned when a status change skips a stage.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store wraps the SQLite database.
type Store struct {
	db  *gorm.DB
	log hclog.Logger
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory store.
func Open(path string, log hclog.Logger) (*Store, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create state directory")
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open state database %s", path)
	}
	if path == ":memory:" {
		// Each new connection would get its own empty database.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := db.AutoMigrate(&AssetRecord{}, &ArtifactRecord{}, &RemoteCaption{}, &RunRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate state database")
	}

	log.Debug("state store opened", "path", path)
	return &Store{db: db, log: log}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Assets ---

// Asset returns the record for path, or nil when none exists.
func (s *Store) Asset(path string) (*AssetRecord, error) {
	var rec AssetRecord
	err := s.db.Where("path = ?", path).Limit(1).Find(&rec).Error
	if err != nil {
		return nil, errors.Wrap(err, "load asset")
	}
	if rec.Path == "" {
		return nil, nil
	}
	return &rec, nil
}

// Status returns the status of path, or "" when the asset is unknown.
func (s *Store) Status(path string) (Status, error) {
	rec, err := s.Asset(path)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.Status, nil
}

// Begin records that path is being processed in runID, resetting it to
// pending with a fresh title, key, and artifact stem.
func (s *Store) Begin(path, title, key, stem, runID string) error {
	rec := AssetRecord{Path: path, Title: title, Key: key, Stem: stem, Status: StatusPending, RunID: runID}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "title_key", "stem", "status", "last_error", "run_id", "updated_at"}),
	}).Create(&rec).Error
	return errors.Wrap(err, "begin asset")
}

// MarkProcessed records that every artifact of path exists.
func (s *Store) MarkProcessed(path, channel string, parts int) error {
	return s.transition(path, StatusProcessed, map[string]interface{}{
		"channel": channel,
		"parts":   parts,
	})
}

// MarkUploaded records that every artifact of path was delivered.
func (s *Store) MarkUploaded(path string) error {
	return s.transition(path, StatusUploaded, map[string]interface{}{"last_error": ""})
}

// MarkFailed records a failure of path. Unknown assets are created.
func (s *Store) MarkFailed(path string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	rec := AssetRecord{Path: path, Status: StatusFailed, LastError: msg}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_error", "updated_at"}),
	}).Create(&rec).Error
	return errors.Wrap(err, "mark failed")
}

// ResetPending moves paths back to pending and forgets their delivered
// artifacts, so the next run re-sends them. Unknown paths are ignored.
func (s *Store) ResetPending(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&AssetRecord{}).Where("path IN ?", paths).
			Updates(map[string]interface{}{"status": StatusPending, "updated_at": time.Now()}).Error; err != nil {
			return errors.Wrap(err, "reset assets")
		}
		err := tx.Model(&ArtifactRecord{}).Where("source_path IN ?", paths).
			Updates(map[string]interface{}{"delivered": false, "message_id": 0}).Error
		return errors.Wrap(err, "reset artifacts")
	})
}

// Stems returns every claimed artifact stem mapped to the asset that owns it.
func (s *Store) Stems() (map[string]string, error) {
	var recs []AssetRecord
	if err := s.db.Select("path", "stem").Where("stem <> ''").Order("path").Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "load stems")
	}
	out := make(map[string]string, len(recs))
	for _, r := range recs {
		if _, taken := out[r.Stem]; !taken {
			out[r.Stem] = r.Path
		}
	}
	return out, nil
}

// CountByStatus returns the number of assets per status.
func (s *Store) CountByStatus() (map[Status]int64, error) {
	var rows []struct {
		Status Status
		N      int64
	}
	err := s.db.Model(&AssetRecord{}).Select("status, count(*) as n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "count assets")
	}
	out := make(map[Status]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

func (s *Store) transition(path string, to Status, fields map[string]interface{}) error {
	rec, err := s.Asset(path)
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.Wrapf(ErrInvalidTransition, "%s: unknown asset", path)
	}
	if !CanTransition(rec.Status, to) {
		return errors.Wrapf(ErrInvalidTransition, "%s: %s -> %s", path, rec.Status, to)
	}
	fields["status"] = to
	fields["updated_at"] = time.Now()
	if err := s.db.Model(&AssetRecord{}).Where("path = ?", path).Updates(fields).Error; err != nil {
		return errors.Wrapf(err, "mark %s", to)
	}
	s.log.Trace("asset status", "path", path, "from", rec.Status, "to", to)
	return nil
}

// CanTransition reports whether an asset may move from one status to
// another. Pending and failed are reachable from anywhere; processed and
// uploaded must follow their predecessor.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusPending, StatusFailed:
		return true
	case StatusProcessed:
		return from == StatusPending || from == StatusProcessed
	case StatusUploaded:
		return from == StatusProcessed || from == StatusUploaded
	}
	return false
}

// --- Artifacts ---

// SaveArtifact inserts or updates the artifact for (SourcePath, PartIndex).
// Delivery state is kept when the row already exists.
func (s *Store) SaveArtifact(a *ArtifactRecord) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_path"}, {Name: "part_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"path", "size_bytes", "channel", "updated_at"}),
	}).Create(a).Error
	return errors.Wrap(err, "save artifact")
}

// Artifacts returns the artifacts of source ordered by part.
func (s *Store) Artifacts(source string) ([]ArtifactRecord, error) {
	var out []ArtifactRecord
	err := s.db.Where("source_path = ?", source).Order("part_index").Find(&out).Error
	return out, errors.Wrap(err, "load artifacts")
}

// Delivered reports whether part of source was delivered at the given path.
// A different path (the artifact was renamed or re-routed) counts as not
// delivered.
func (s *Store) Delivered(source string, part int, path string) (bool, error) {
	var n int64
	err := s.db.Model(&ArtifactRecord{}).
		Where("source_path = ? AND part_index = ? AND path = ? AND delivered = ?", source, part, path, true).
		Count(&n).Error
	return n > 0, errors.Wrap(err, "check delivered")
}

// MarkDelivered records a successful upload of part of source.
func (s *Store) MarkDelivered(source string, part, messageID int) error {
	err := s.db.Model(&ArtifactRecord{}).
		Where("source_path = ? AND part_index = ?", source, part).
		Updates(map[string]interface{}{"delivered": true, "message_id": messageID, "updated_at": time.Now()}).Error
	return errors.Wrap(err, "mark delivered")
}

// --- Remote captions ---

// ReplaceRemoteCaptions swaps the ledger for caps in one transaction.
func (s *Store) ReplaceRemoteCaptions(caps []RemoteCaption) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&RemoteCaption{}).Error; err != nil {
			return errors.Wrap(err, "clear remote captions")
		}
		if len(caps) == 0 {
			return nil
		}
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(caps, 100).Error
		return errors.Wrap(err, "store remote captions")
	})
}

// RemoteCaptions returns the ledger ordered by key.
func (s *Store) RemoteCaptions() ([]RemoteCaption, error) {
	var out []RemoteCaption
	err := s.db.Order("title_key").Find(&out).Error
	return out, errors.Wrap(err, "load remote captions")
}

// --- Runs ---

// StartRun records the start of a command invocation.
func (s *Store) StartRun(command string) (*RunRecord, error) {
	run := &RunRecord{ID: uuid.New().String(), Command: command, StartedAt: time.Now()}
	if err := s.db.Create(run).Error; err != nil {
		return nil, errors.Wrap(err, "start run")
	}
	return run, nil
}

// FinishRun stores run's final counters.
func (s *Store) FinishRun(run *RunRecord) error {
	now := time.Now()
	run.FinishedAt = &now
	return errors.Wrap(s.db.Save(run).Error, "finish run")
}

// LastRun returns the most recent run, or nil.
func (s *Store) LastRun() (*RunRecord, error) {
	var runs []RunRecord
	if err := s.db.Order("started_at desc").Limit(1).Find(&runs).Error; err != nil {
		return nil, errors.Wrap(err, "load last run")
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}
