// Package common defines shared constants and sentinel errors used across
// bizkeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Key management errors.
	ErrKeyInitialization = errors.New("failed to initialize encryption service")
	ErrKeyNotInitialized = errors.New("encryption key not initialized")

	// Encryption errors.
	ErrInvalidInput = errors.New("invalid data for encryption")
	ErrEncryption   = errors.New("encryption failed")
	ErrDecryption   = errors.New("decryption failed")

	// Backup lifecycle errors.
	ErrBackupInit     = errors.New("failed to initialize backup service")
	ErrBackupCreation = errors.New("failed to create backup")
	ErrCloudUpload    = errors.New("failed to upload backup to cloud")

	// Restore errors. Each one implies a different remediation, so the
	// messages must stay distinguishable.
	ErrInvalidBackup      = errors.New("Invalid backup file")
	ErrEncryptionMismatch = errors.New("backup is encrypted but encryption is not enabled")
	ErrIntegrity          = errors.New("Backup integrity check failed")

	ErrSharingUnavailable = errors.New("sharing is not available on this device")

	// Storage-level errors (key/value store, credential store).
	ErrStorage  = errors.New("storage error")
	ErrNotFound = errors.New("not found")

	// Remote calls that exceeded their deadline.
	ErrNetworkTimeout = errors.New("network timeout")
)
