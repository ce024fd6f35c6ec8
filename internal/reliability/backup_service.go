package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/database"
)

// BackupMetadata describes the contents of one backup archive
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes a single database file in the archive
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Uploader is the object storage surface the backup service needs.
// S3Client satisfies it.
type Uploader interface {
	Upload(ctx context.Context, name string, body io.Reader) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// BackupService archives the engine databases and ships them to object
// storage, keeping a bounded number of past backups.
type BackupService struct {
	uploader  Uploader
	databases []*database.DB
	dataDir   string
	keep      int
	log       zerolog.Logger
}

// NewBackupService creates the backup service
func NewBackupService(uploader Uploader, dataDir string, keep int, log zerolog.Logger, databases ...*database.DB) *BackupService {
	return &BackupService{
		uploader:  uploader,
		databases: databases,
		dataDir:   dataDir,
		keep:      keep,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUploadBackup checkpoints the databases, archives them with a
// metadata manifest and uploads the archive, then prunes old backups.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) error {
	start := time.Now()
	s.log.Info().Msg("Starting state backup")

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Databases: make([]DatabaseMetadata, 0, len(s.databases)),
	}

	var files []string
	for _, db := range s.databases {
		// Checkpoint so the main file holds all committed state
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			return fmt.Errorf("failed to checkpoint %s: %w", db.Name(), err)
		}

		filename := db.Name() + ".db"
		staged := filepath.Join(stagingDir, filename)
		if err := copyFile(db.Path(), staged); err != nil {
			return fmt.Errorf("failed to stage %s: %w", db.Name(), err)
		}

		info, err := os.Stat(staged)
		if err != nil {
			return fmt.Errorf("failed to stat staged %s: %w", db.Name(), err)
		}
		checksum, err := fileChecksum(staged)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", db.Name(), err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      db.Name(),
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, staged)
	}

	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	files = append(files, metadataPath)

	archiveName := fmt.Sprintf("lodestar-backup-%s.tar.gz", time.Now().UTC().Format("2006-01-02-150405"))
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, files); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	if err := s.uploader.Upload(ctx, archiveName, archive); err != nil {
		return err
	}

	if err := s.pruneOldBackups(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to prune old backups")
	}

	s.log.Info().
		Str("archive", archiveName).
		Dur("duration", time.Since(start)).
		Msg("State backup complete")
	return nil
}

// pruneOldBackups deletes the oldest backups past the retention count
func (s *BackupService) pruneOldBackups(ctx context.Context) error {
	if s.keep <= 0 {
		return nil
	}

	names, err := s.uploader.List(ctx)
	if err != nil {
		return err
	}
	if len(names) <= s.keep {
		return nil
	}

	for _, name := range names[:len(names)-s.keep] {
		if err := s.uploader.Delete(ctx, name); err != nil {
			return err
		}
		s.log.Info().Str("backup", name).Msg("Deleted expired backup")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func createArchive(archivePath string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	for _, path := range files {
		if err := addToArchive(tw, path); err != nil {
			return err
		}
	}
	return nil
}

func addToArchive(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
