// Package backup creates, lists, verifies, restores, shares and prunes
// snapshots of the application data.
//
// A snapshot is a single JSON Envelope written to the backup directory and,
// when automatic backup is on, mirrored to the remote object store under
// "backups/". The checksum in the envelope covers the plaintext payload, so
// it also detects a wrong key or tampering that CBC decryption lets through.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
	"github.com/dmitrijs2005/bizkeeper/internal/filex"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
	"github.com/dmitrijs2005/bizkeeper/internal/netx"
	"github.com/dmitrijs2005/bizkeeper/internal/objectstore"
	"github.com/dmitrijs2005/bizkeeper/internal/repositories/kv"
	"github.com/dmitrijs2005/bizkeeper/internal/share"
)

// DownloadURLTTL is the lifetime of URLs returned by UploadToCloud.
const DownloadURLTTL = 15 * time.Minute

// Encryptor is the part of the encryption service used for backups.
type Encryptor interface {
	Encrypt(ctx context.Context, data any) (string, error)
	Decrypt(ctx context.Context, envelope string) (string, error)
	GenerateHash(data string) string
	CompareHash(data, hash string) bool
}

// Deps are the collaborators of a Service. Cloud and Sharer may be nil.
type Deps struct {
	FS        filex.FileSystem
	Encryptor Encryptor
	Settings  kv.Repository
	Cloud     objectstore.Store
	Sharer    share.Sharer
	Logger    logging.Logger
}

// Listing holds backup file names, local and remote.
type Listing struct {
	Local []string
	Cloud []string
}

type Service struct {
	dir    string
	fs     filex.FileSystem
	enc    Encryptor
	repo   kv.Repository
	cloud  objectstore.Store
	sharer share.Sharer
	logger logging.Logger
	now    func() time.Time
	fetch  func(ctx context.Context, url string) ([]byte, error)

	settingsMu sync.RWMutex
	settings   Settings

	// dirMu serializes creation and pruning in dir.
	dirMu sync.Mutex
}

// NewService builds a Service rooted at dir and loads persisted settings.
// A settings load failure is logged and the defaults are used.
func NewService(ctx context.Context, dir string, d Deps) *Service {
	s := &Service{
		dir:      dir,
		fs:       d.FS,
		enc:      d.Encryptor,
		repo:     d.Settings,
		cloud:    d.Cloud,
		sharer:   d.Sharer,
		logger:   d.Logger,
		now:      time.Now,
		fetch:    netx.Download,
		settings: DefaultSettings(),
	}
	if err := s.LoadSettings(ctx); err != nil {
		s.logger.Error(ctx, "error loading backup settings", "error", err)
	}
	return s
}

// Dir returns the local backup directory.
func (s *Service) Dir() string { return s.dir }

// Initialize creates the backup directory and prunes expired backups.
func (s *Service) Initialize(ctx context.Context) error {
	if err := s.fs.MakeDirectory(s.dir); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBackupInit, err)
	}
	if err := s.CleanupOldBackups(ctx); err != nil {
		s.logger.Warn(ctx, "error cleaning up old backups", "error", err)
	}
	return nil
}

// CreateBackup snapshots data and returns the path of the written file.
//
// If the cloud upload fails the call stops there: the local file is kept and
// its path returned with an error wrapping common.ErrCloudUpload, but the last
// backup date is not recorded and no pruning runs.
func (s *Service) CreateBackup(ctx context.Context, data any) (string, error) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	settings := s.Settings()
	now := s.now()

	filePath, name, err := s.writeBackup(ctx, data, settings, now)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrBackupCreation, err)
	}
	s.logger.Info(ctx, "backup created", "path", filePath, "encrypted", settings.EncryptBackups)

	if settings.AutoBackup && s.cloud != nil {
		if _, err := s.UploadToCloud(ctx, filePath, name); err != nil {
			s.logger.Error(ctx, "cloud backup error", "file", name, "error", err)
			return filePath, err
		}
	}

	if err := s.UpdateSettings(ctx, SettingsPatch{LastBackupDate: &now}); err != nil {
		s.logger.Warn(ctx, "failed to record last backup date", "error", err)
	}
	if err := s.cleanupLocked(ctx); err != nil {
		s.logger.Warn(ctx, "error cleaning up old backups", "error", err)
	}

	return filePath, nil
}

func (s *Service) writeBackup(ctx context.Context, data any, settings Settings, now time.Time) (string, string, error) {
	if data == nil {
		return "", "", common.ErrInvalidInput
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", "", fmt.Errorf("serialize backup data: %w", err)
	}
	content := string(raw)

	meta := Metadata{
		Timestamp: formatTimestamp(now),
		Version:   FormatVersion,
		Size:      len(raw),
		Encrypted: settings.EncryptBackups,
		Checksum:  s.enc.GenerateHash(content),
	}

	final := content
	if settings.EncryptBackups {
		if final, err = s.enc.Encrypt(ctx, content); err != nil {
			return "", "", err
		}
	}

	doc, err := json.Marshal(Envelope{Metadata: meta, Content: final})
	if err != nil {
		return "", "", fmt.Errorf("serialize envelope: %w", err)
	}

	name, err := s.freeName(now)
	if err != nil {
		return "", "", err
	}
	filePath := filepath.Join(s.dir, name)
	if err := s.fs.WriteFile(filePath, doc); err != nil {
		return "", "", err
	}
	return filePath, name, nil
}

// freeName picks a name that does not overwrite an existing backup.
func (s *Service) freeName(now time.Time) (string, error) {
	name := fileName(now)
	for i := 1; ; i++ {
		fi, err := s.fs.Stat(filepath.Join(s.dir, name))
		if err != nil {
			return "", err
		}
		if !fi.Exists {
			return name, nil
		}
		base := fileName(now)
		name = fmt.Sprintf("%s_%d%s", base[:len(base)-len(fileExt)], i, fileExt)
	}
}

// UploadToCloud copies the backup at filePath to "backups/<name>" and
// returns a download URL for it.
func (s *Service) UploadToCloud(ctx context.Context, filePath, name string) (string, error) {
	if s.cloud == nil {
		return "", fmt.Errorf("%w: remote storage is not configured", common.ErrCloudUpload)
	}
	content, err := s.fs.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrCloudUpload, err)
	}
	key := cloudPrefix + name
	if err := s.cloud.PutObject(ctx, key, content, contentType); err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrCloudUpload, err)
	}
	url, err := s.cloud.GetObjectURL(ctx, key, DownloadURLTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrCloudUpload, err)
	}
	return url, nil
}

// DownloadFromCloud fetches the remote backup name through a presigned URL
// and stores it in the backup directory, returning the local path. The
// document must parse as a backup envelope; it is not decrypted here.
func (s *Service) DownloadFromCloud(ctx context.Context, name string) (string, error) {
	if s.cloud == nil {
		return "", fmt.Errorf("%w: remote storage is not configured", common.ErrStorage)
	}
	if name != filepath.Base(name) || !isBackupName(name) {
		return "", fmt.Errorf("%w: %q is not a backup name", common.ErrInvalidInput, name)
	}

	url, err := s.cloud.GetObjectURL(ctx, cloudPrefix+name, DownloadURLTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	body, err := s.fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	if _, err := parseEnvelope(body); err != nil {
		return "", err
	}

	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	if err := s.fs.MakeDirectory(s.dir); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	filePath := filepath.Join(s.dir, name)
	if err := s.fs.WriteFile(filePath, body); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	s.logger.Info(ctx, "backup downloaded", "name", name, "path", filePath)
	return filePath, nil
}

// RestoreBackup verifies the backup at path and decodes its payload into out.
//
// Errors: common.ErrInvalidBackup for an unparsable file,
// common.ErrEncryptionMismatch for an encrypted backup while encryption is
// disabled, common.ErrDecryption, and common.ErrIntegrity on a checksum
// mismatch.
func (s *Service) RestoreBackup(ctx context.Context, path string, out any) error {
	content, err := s.open(ctx, path)
	if err != nil {
		s.logger.Error(ctx, "restore error", "path", path, "error", err)
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidBackup, err)
	}
	return nil
}

// VerifyBackup reports whether the backup at path can be restored.
func (s *Service) VerifyBackup(ctx context.Context, path string) bool {
	if _, err := s.open(ctx, path); err != nil {
		s.logger.Warn(ctx, "backup verification failed", "path", path, "error", err)
		return false
	}
	return true
}

// open reads, decrypts and checksums a backup, returning the payload.
func (s *Service) open(ctx context.Context, path string) (string, error) {
	b, err := s.fs.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read backup: %w", err)
	}
	env, err := parseEnvelope(b)
	if err != nil {
		return "", err
	}

	if env.Metadata.Encrypted && !s.Settings().EncryptBackups {
		return "", common.ErrEncryptionMismatch
	}

	content := env.Content
	if env.Metadata.Encrypted {
		if content, err = s.enc.Decrypt(ctx, content); err != nil {
			return "", err
		}
	}

	if !s.enc.CompareHash(content, env.Metadata.Checksum) {
		return "", common.ErrIntegrity
	}
	return content, nil
}

// ShareBackup hands the backup file to the share surface.
func (s *Service) ShareBackup(ctx context.Context, path string) error {
	if s.sharer == nil || !s.sharer.IsAvailable(ctx) {
		return common.ErrSharingUnavailable
	}
	err := s.sharer.Share(ctx, path, share.Options{
		MimeType:    contentType,
		DialogTitle: "Share Backup File",
	})
	if err != nil {
		return fmt.Errorf("failed to share backup: %w", err)
	}
	return nil
}

// ListBackups returns local *.json file names and remote backup names. If
// the remote listing fails the local part is still filled in.
func (s *Service) ListBackups(ctx context.Context) (Listing, error) {
	var l Listing

	names, err := s.fs.ListDirectory(s.dir)
	if err != nil {
		return l, fmt.Errorf("failed to list backups: %w", err)
	}
	for _, n := range names {
		if isBackupName(n) {
			l.Local = append(l.Local, n)
		}
	}

	if s.cloud == nil {
		return l, nil
	}
	objs, err := s.cloud.ListObjects(ctx, cloudPrefix)
	if err != nil {
		return l, fmt.Errorf("failed to list cloud backups: %w", err)
	}
	for _, o := range objs {
		l.Cloud = append(l.Cloud, filepath.Base(o.Key))
	}
	return l, nil
}

// CleanupOldBackups deletes backups older than the retention period and
// trims each location to the newest MaxBackups. Remote copies are pruned
// only while automatic backup is on.
func (s *Service) CleanupOldBackups(ctx context.Context) error {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	return s.cleanupLocked(ctx)
}

func (s *Service) cleanupLocked(ctx context.Context) error {
	settings := s.Settings()
	now := s.now()

	names, err := s.fs.ListDirectory(s.dir)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	var local []dated
	for _, n := range names {
		if !isBackupName(n) {
			continue
		}
		t, err := s.localBackupTime(filepath.Join(s.dir, n))
		if err != nil {
			s.logger.Warn(ctx, "skipping backup with unknown age", "file", n, "error", err)
			continue
		}
		local = append(local, dated{name: n, at: t})
	}

	var errs []error
	for _, d := range expired(local, now, settings) {
		if err := s.fs.DeleteFile(filepath.Join(s.dir, d.name)); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Info(ctx, "pruned local backup", "file", d.name)
	}

	if settings.AutoBackup && s.cloud != nil {
		if err := s.cleanupCloud(ctx, now, settings); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) cleanupCloud(ctx context.Context, now time.Time, settings Settings) error {
	objs, err := s.cloud.ListObjects(ctx, cloudPrefix)
	if err != nil {
		return fmt.Errorf("list cloud backups: %w", err)
	}

	var remote []dated
	for _, o := range objs {
		t, err := timeFromName(o.Key)
		if err != nil {
			if o.LastModified.IsZero() {
				continue
			}
			t = o.LastModified
		}
		remote = append(remote, dated{name: o.Key, at: t})
	}

	var errs []error
	for _, d := range expired(remote, now, settings) {
		if err := s.cloud.DeleteObject(ctx, d.name); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Info(ctx, "pruned cloud backup", "key", d.name)
	}
	return errors.Join(errs...)
}

// localBackupTime reads the creation time from the envelope metadata,
// falling back to the time encoded in the file name.
func (s *Service) localBackupTime(path string) (time.Time, error) {
	if b, err := s.fs.ReadFile(path); err == nil {
		var head struct {
			Metadata struct {
				Timestamp string `json:"timestamp"`
			} `json:"metadata"`
		}
		if json.Unmarshal(b, &head) == nil && head.Metadata.Timestamp != "" {
			if t, err := parseTimestamp(head.Metadata.Timestamp); err == nil {
				return t, nil
			}
		}
	}
	return timeFromName(path)
}
