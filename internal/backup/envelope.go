package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
)

const (
	FormatVersion = "1.0"
	filePrefix    = "backup_"
	fileExt       = ".json"
	cloudPrefix   = "backups/"
	contentType   = "application/json"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
	fileTimeLayout  = "2006-01-02T15-04-05.000Z07"
)

type Metadata struct {
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Size      int    `json:"size"`
	Encrypted bool   `json:"encrypted"`
	Checksum  string `json:"checksum"`
}

// Envelope is the on-disk and on-remote backup format.
type Envelope struct {
	Metadata Metadata `json:"metadata"`
	Content  string   `json:"content"`
}

type rawEnvelope struct {
	Metadata *Metadata `json:"metadata"`
	Content  *string   `json:"content"`
}

// parseEnvelope decodes b, rejecting documents without metadata or content.
func parseEnvelope(b []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(b, &raw); err != nil {
		return Envelope{}, common.ErrInvalidBackup
	}
	if raw.Metadata == nil || raw.Content == nil {
		return Envelope{}, common.ErrInvalidBackup
	}
	return Envelope{Metadata: *raw.Metadata, Content: *raw.Content}, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// fileName derives the backup file name from its creation time.
func fileName(t time.Time) string {
	return filePrefix + strings.ReplaceAll(formatTimestamp(t), ":", "-") + fileExt
}

func isBackupName(name string) bool {
	return strings.HasSuffix(name, fileExt)
}

// parseTimestamp accepts RFC 3339 and the colon-free form used in names.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, fileTimeLayout, "2006-01-02T15-04-05Z07"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized backup timestamp %q", s)
}

// timeFromName extracts the creation time encoded in a backup file name.
func timeFromName(name string) (time.Time, error) {
	base := path.Base(name)
	if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, fileExt) {
		return time.Time{}, errors.New("not a backup file name")
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(base, filePrefix), fileExt)
	ts, _, _ = strings.Cut(ts, "_")
	return parseTimestamp(ts)
}
