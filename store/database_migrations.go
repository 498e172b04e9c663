// database_migrations.go - Datenbank-Schema-Migrationen
// Enthält: migrate(), alle migrateVxToVy() Funktionen

package store

import "fmt"

// migrate führt Datenbank-Schema-Migrationen durch
func (db *database) migrate() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	for version < currentSchemaVersion {
		switch version {
		case 1:
			// summary Spalte zur runs Tabelle hinzufügen
			if err := db.migrateV1ToV2(); err != nil {
				return fmt.Errorf("migrate v1 to v2: %w", err)
			}
			version = 2
		case 2:
			// Index für artifacts Tabelle hinzufügen
			if err := db.migrateV2ToV3(); err != nil {
				return fmt.Errorf("migrate v2 to v3: %w", err)
			}
			version = 3
		default:
			// Unbekannte Version - auf aktuell setzen
			version = currentSchemaVersion
		}
	}

	return nil
}

// migrateV1ToV2 fügt die summary Spalte zur runs Tabelle hinzu
func (db *database) migrateV1ToV2() error {
	_, err := db.conn.Exec(`ALTER TABLE runs ADD COLUMN summary TEXT NOT NULL DEFAULT '{}';`)
	if err != nil && !duplicateColumnError(err) {
		return fmt.Errorf("add summary column: %w", err)
	}

	return db.setSchemaVersion(2)
}

// migrateV2ToV3 fügt den fehlenden Index für die artifacts Tabelle hinzu
func (db *database) migrateV2ToV3() error {
	if _, err := db.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_artifacts_run_id ON artifacts(run_id);`); err != nil {
		return fmt.Errorf("create artifacts index: %w", err)
	}

	return db.setSchemaVersion(3)
}
