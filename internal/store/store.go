package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sylph/internal/restless"
	"sylph/internal/vision"
)

// Store persists configuration data: calibration profiles and named engine
// presets. Session results deliberately never touch it.
type Store struct {
	db *sql.DB
}

// CalibrationProfile is a saved set of neutral facial references plus the
// device mount compensation, keyed by profile name.
type CalibrationProfile struct {
	ID                    string
	Name                  string
	NeutralEAR            float64
	NeutralMouthWidth     float64
	NeutralBrowHeight     float64
	ShoulderTiltOffsetDeg float64
	UpdatedAt             time.Time
}

// Calibration converts the stored references into the extractor's form.
func (p *CalibrationProfile) Calibration() restless.Calibration {
	return restless.Calibration{
		NeutralEAR:        p.NeutralEAR,
		NeutralMouthWidth: p.NeutralMouthWidth,
		NeutralBrowHeight: p.NeutralBrowHeight,
	}
}

// ConfigPreset is a named engine configuration.
type ConfigPreset struct {
	Name      string
	Options   vision.Options
	UpdatedAt time.Time
}

// New opens the database at path, enabling WAL for concurrent access.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Migrate runs database migrations.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS calibration_profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			neutral_ear REAL NOT NULL,
			neutral_mouth_width REAL NOT NULL,
			neutral_brow_height REAL NOT NULL,
			shoulder_tilt_offset_deg REAL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS config_presets (
			name TEXT PRIMARY KEY,
			options TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calibration_name ON calibration_profiles(name)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveCalibration inserts or updates a profile by name. A missing ID gets
// allocated; UpdatedAt is stamped on every save.
func (s *Store) SaveCalibration(p *CalibrationProfile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = time.Now().UTC()

	query := `INSERT INTO calibration_profiles
		(id, name, neutral_ear, neutral_mouth_width, neutral_brow_height, shoulder_tilt_offset_deg, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			neutral_ear = excluded.neutral_ear,
			neutral_mouth_width = excluded.neutral_mouth_width,
			neutral_brow_height = excluded.neutral_brow_height,
			shoulder_tilt_offset_deg = excluded.shoulder_tilt_offset_deg,
			updated_at = excluded.updated_at`

	_, err := s.db.Exec(query, p.ID, p.Name, p.NeutralEAR, p.NeutralMouthWidth,
		p.NeutralBrowHeight, p.ShoulderTiltOffsetDeg, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save calibration profile: %w", err)
	}
	return nil
}

// GetCalibration retrieves a profile by name, nil when absent.
func (s *Store) GetCalibration(name string) (*CalibrationProfile, error) {
	query := `SELECT id, name, neutral_ear, neutral_mouth_width, neutral_brow_height,
		shoulder_tilt_offset_deg, updated_at
		FROM calibration_profiles WHERE name = ?`

	var p CalibrationProfile
	err := s.db.QueryRow(query, name).Scan(&p.ID, &p.Name, &p.NeutralEAR,
		&p.NeutralMouthWidth, &p.NeutralBrowHeight, &p.ShoulderTiltOffsetDeg, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calibration profile: %w", err)
	}
	return &p, nil
}

// ListCalibrations returns all profiles, most recently updated first.
func (s *Store) ListCalibrations() ([]*CalibrationProfile, error) {
	query := `SELECT id, name, neutral_ear, neutral_mouth_width, neutral_brow_height,
		shoulder_tilt_offset_deg, updated_at
		FROM calibration_profiles ORDER BY updated_at DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list calibration profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*CalibrationProfile
	for rows.Next() {
		var p CalibrationProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.NeutralEAR, &p.NeutralMouthWidth,
			&p.NeutralBrowHeight, &p.ShoulderTiltOffsetDeg, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan calibration profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

// DeleteCalibration deletes a profile by name.
func (s *Store) DeleteCalibration(name string) error {
	_, err := s.db.Exec("DELETE FROM calibration_profiles WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete calibration profile: %w", err)
	}
	return nil
}

// SavePreset stores a named engine configuration as JSON.
func (s *Store) SavePreset(name string, opts vision.Options) error {
	raw, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}

	query := `INSERT INTO config_presets (name, options, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			options = excluded.options,
			updated_at = excluded.updated_at`

	if _, err := s.db.Exec(query, name, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save preset: %w", err)
	}
	return nil
}

// GetPreset retrieves a preset by name, nil when absent.
func (s *Store) GetPreset(name string) (*ConfigPreset, error) {
	var (
		p   ConfigPreset
		raw string
	)
	err := s.db.QueryRow("SELECT name, options, updated_at FROM config_presets WHERE name = ?", name).
		Scan(&p.Name, &raw, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preset: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &p.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preset: %w", err)
	}
	return &p, nil
}

// ListPresets returns all presets, most recently updated first.
func (s *Store) ListPresets() ([]*ConfigPreset, error) {
	rows, err := s.db.Query("SELECT name, options, updated_at FROM config_presets ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	defer rows.Close()

	var presets []*ConfigPreset
	for rows.Next() {
		var (
			p   ConfigPreset
			raw string
		)
		if err := rows.Scan(&p.Name, &raw, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &p.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preset: %w", err)
		}
		presets = append(presets, &p)
	}
	return presets, rows.Err()
}

// DeletePreset deletes a preset by name.
func (s *Store) DeletePreset(name string) error {
	_, err := s.db.Exec("DELETE FROM config_presets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	return nil
}
