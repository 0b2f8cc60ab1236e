// Package backup snapshots the ledger and quote databases and uploads them
// to an R2/S3-compatible bucket on a schedule.
//
// Only the ledger and quotes databases are snapshotted; jobs and
// reservations are operational queues, not financial records, and rebuild
// themselves from a clean start.
package backup

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
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/stablesats/internal/database"
)

const minBackupsToKeep = 3

// DatabaseSource names one database file this service snapshots.
type DatabaseSource struct {
	Name string
	DB   *database.DB
}

// Config holds everything the Service needs to build and ship a snapshot.
type Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
	StagingDir      string
	Databases       []DatabaseSource
}

// Metadata describes one uploaded archive's contents.
type Metadata struct {
	Timestamp time.Time      `json:"timestamp"`
	Databases []DatabaseMeta `json:"databases"`
}

// DatabaseMeta describes one database file inside an archive.
type DatabaseMeta struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Info describes one archive already stored in the bucket.
type Info struct {
	Key       string
	Timestamp time.Time
	SizeBytes int64
}

// Service snapshots the configured databases into a tar.gz archive and
// uploads it to the configured bucket.
type Service struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      Config
	log      zerolog.Logger
}

// New builds an S3 client pointed at an R2/S3-compatible endpoint using
// static credentials, the way a second-region or non-AWS S3 target is
// always wired with this SDK: a custom BaseEndpoint plus a placeholder
// region, since R2 doesn't have AWS regions of its own.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Service, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &Service{
		client:   client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
		log:      log.With().Str("component", "backup").Logger(),
	}, nil
}

// Name identifies this job to the scheduler.
func (s *Service) Name() string { return "nightly_backup" }

// Run performs one backup-and-rotate cycle. It satisfies scheduler.Job.
func (s *Service) Run(ctx context.Context) error {
	if err := s.CreateAndUpload(ctx); err != nil {
		return err
	}
	return s.RotateOld(ctx)
}

// CreateAndUpload snapshots every configured database, archives them with a
// metadata manifest, and uploads the archive.
func (s *Service) CreateAndUpload(ctx context.Context) error {
	start := time.Now()
	s.log.Info().Msg("starting backup")

	stagingDir := filepath.Join(s.cfg.StagingDir, fmt.Sprintf("staging-%d", start.UnixNano()))
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	meta := Metadata{Timestamp: start.UTC()}
	for _, src := range s.cfg.Databases {
		destPath := filepath.Join(stagingDir, src.Name+".db")
		if err := snapshotDatabase(ctx, src.DB, destPath); err != nil {
			return fmt.Errorf("snapshot %s: %w", src.Name, err)
		}
		info, err := os.Stat(destPath)
		if err != nil {
			return fmt.Errorf("stat %s snapshot: %w", src.Name, err)
		}
		checksum, err := checksumFile(destPath)
		if err != nil {
			return fmt.Errorf("checksum %s snapshot: %w", src.Name, err)
		}
		meta.Databases = append(meta.Databases, DatabaseMeta{
			Name: src.Name, Filename: src.Name + ".db", SizeBytes: info.Size(), Checksum: checksum,
		})
	}

	metaPath := filepath.Join(stagingDir, "manifest.json")
	if err := writeMetadata(metaPath, meta); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	archiveName := fmt.Sprintf("stablesats-backup-%s.tar.gz", start.Format("2006-01-02-150405"))
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, meta); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(archiveName),
		Body:   archiveFile,
	}); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	s.log.Info().Str("archive", archiveName).Dur("duration", time.Since(start)).Msg("backup uploaded")
	return nil
}

// ListBackups lists every stablesats backup archive in the bucket, newest
// first.
func (s *Service) ListBackups(ctx context.Context) ([]Info, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String("stablesats-backup-"),
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	backups := make([]Info, 0, len(out.Contents))
	for _, obj := range out.Contents {
		ts, ok := parseArchiveTimestamp(aws.ToString(obj.Key))
		if !ok {
			continue
		}
		backups = append(backups, Info{Key: aws.ToString(obj.Key), Timestamp: ts, SizeBytes: aws.ToInt64(obj.Size)})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

// RotateOld deletes archives older than RetentionDays, always keeping at
// least minBackupsToKeep regardless of age.
func (s *Service) RotateOld(ctx context.Context) error {
	if s.cfg.RetentionDays <= 0 {
		return nil
	}
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("list backups for rotation: %w", err)
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	deleted := 0
	for i, b := range backups {
		if i < minBackupsToKeep || !b.Timestamp.Before(cutoff) {
			continue
		}
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.cfg.Bucket), Key: aws.String(b.Key),
		}); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("delete old backup")
			continue
		}
		deleted++
	}
	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("backup rotation complete")
	return nil
}

func parseArchiveTimestamp(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, "stablesats-backup-") || !strings.HasSuffix(key, ".tar.gz") {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(key, "stablesats-backup-"), ".tar.gz")
	ts, err := time.Parse("2006-01-02-150405", raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// snapshotDatabase takes a consistent point-in-time copy of a live SQLite
// database, safe to run concurrently with WAL writers since VACUUM INTO
// reads through a single transaction snapshot.
func snapshotDatabase(ctx context.Context, db *database.DB, destPath string) error {
	_, err := db.ExecContext(ctx, "VACUUM INTO ?", destPath)
	return err
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func writeMetadata(path string, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func createArchive(archivePath, sourceDir string, meta Metadata) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	gw := gzip.NewWriter(archiveFile)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	if err := addFileToArchive(tw, filepath.Join(sourceDir, "manifest.json"), "manifest.json"); err != nil {
		return err
	}
	for _, dbMeta := range meta.Databases {
		if err := addFileToArchive(tw, filepath.Join(sourceDir, dbMeta.Filename), dbMeta.Filename); err != nil {
			return err
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, filePath, nameInArchive string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{
		Name: nameInArchive, Size: info.Size(), Mode: int64(info.Mode()), ModTime: info.ModTime(),
	}); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
