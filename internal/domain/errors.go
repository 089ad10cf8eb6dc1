package domain

import "errors"

var (
	ErrNoManifestRoot      = errors.New("manifest has no root element")
	ErrChecksumMismatch    = errors.New("package checksum mismatch")
	ErrNothingToInstall    = errors.New("nothing to install")
	ErrSessionBusy         = errors.New("an update operation is already running")
	ErrDownloadStartFailed = errors.New("download could not be started")
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidPackageID    = errors.New("invalid package id")
	ErrDownloadIncomplete  = errors.New("pending packages have not been downloaded")
)
