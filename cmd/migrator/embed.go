package main

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// Migration filename format: 001_migration_name.up.sql or 001_migration_name.down.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// EmbeddedMigration serves migration files compiled into the binary and
// validates them before any state-changing operation: filename format,
// up/down pairing, gap-free sequence, and checksum integrity across
// repeated validations within one process.
type EmbeddedMigration struct {
	fs        fs.FS
	checksums map[string]string // filename -> checksum
}

// MigrationInfo contains parsed information about a migration file.
type MigrationInfo struct {
	Sequence  int
	Name      string
	Direction string // "up" or "down"
	Filename  string
	Checksum  string
}

// NewEmbeddedMigration creates an EmbeddedMigration with an injectable
// filesystem. Pass nil to use the migrations embedded in this binary.
func NewEmbeddedMigration(filesystem fs.FS) *EmbeddedMigration {
	if filesystem == nil {
		filesystem = embeddedMigrations
	}

	return &EmbeddedMigration{
		fs:        filesystem,
		checksums: make(map[string]string),
	}
}

// FS returns the migration filesystem for source driver construction.
func (e *EmbeddedMigration) FS() fs.FS {
	return e.fs
}

// List returns the migration filenames that conform to the naming standard,
// sorted. Non-conforming files are ignored rather than failing the listing;
// Validate rejects them.
func (e *EmbeddedMigration) List() ([]string, error) {
	entries, err := fs.ReadDir(e.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) == ".sql" && migrationFilenameRegex.MatchString(name) {
			files = append(files, name)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Validate performs comprehensive validation of the migration set.
func (e *EmbeddedMigration) Validate() error {
	files, err := e.List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no migration files embedded")
	}

	if err := e.validatePairing(files); err != nil {
		return err
	}

	if err := e.validateSequence(files); err != nil {
		return err
	}

	return e.validateChecksums(files)
}

// Content returns the content of one migration file.
func (e *EmbeddedMigration) Content(filename string) ([]byte, error) {
	return fs.ReadFile(e.fs, filename)
}

// MaxSequence returns the highest migration sequence number in the set.
func (e *EmbeddedMigration) MaxSequence() int {
	files, err := e.List()
	if err != nil {
		return 0
	}

	maxSequence := 0

	for _, filename := range files {
		if migration, err := parseMigrationFilename(filename); err == nil {
			if migration.Sequence > maxSequence {
				maxSequence = migration.Sequence
			}
		}
	}

	return maxSequence
}

// parseMigrationFilename extracts the components of a migration filename.
func parseMigrationFilename(filename string) (*MigrationInfo, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return nil, fmt.Errorf(
			"invalid migration filename %s (expected: 001_name.up.sql or 001_name.down.sql)",
			filename,
		)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in filename %s: %w", filename, err)
	}

	return &MigrationInfo{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

// validatePairing ensures every up migration has a matching down migration.
func (e *EmbeddedMigration) validatePairing(files []string) error {
	directions := make(map[string]map[string]bool) // 001_name -> direction set

	for _, file := range files {
		migration, err := parseMigrationFilename(file)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%03d_%s", migration.Sequence, migration.Name)
		if directions[key] == nil {
			directions[key] = make(map[string]bool)
		}

		directions[key][migration.Direction] = true
	}

	for key, set := range directions {
		if !set["up"] {
			return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
		}

		if !set["down"] {
			return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
		}
	}

	return nil
}

// validateSequence ensures the migrations form a gap-free 001..N sequence.
func (e *EmbeddedMigration) validateSequence(files []string) error {
	seen := make(map[int]bool)

	for _, file := range files {
		migration, err := parseMigrationFilename(file)
		if err != nil {
			return err
		}

		seen[migration.Sequence] = true
	}

	var sequences []int
	for seq := range seen {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	if len(sequences) == 0 {
		return nil
	}

	if sequences[0] != 1 {
		return fmt.Errorf("migration sequence should start with 001, but found %03d", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if sequences[i] != sequences[i-1]+1 {
			return fmt.Errorf(
				"gap in migration sequence: expected %03d, found %03d",
				sequences[i-1]+1, sequences[i],
			)
		}
	}

	return nil
}

// validateChecksums detects migration content changing between validations
// within one process, then records the current checksums.
func (e *EmbeddedMigration) validateChecksums(files []string) error {
	for _, file := range files {
		content, err := e.Content(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		checksum := fmt.Sprintf("%x", sha256.Sum256(content))

		if stored, exists := e.checksums[file]; exists && stored != checksum {
			return fmt.Errorf("checksum mismatch for %s: file has been modified", file)
		}

		e.checksums[file] = checksum
	}

	return nil
}
