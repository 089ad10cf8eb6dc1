package domain

// CheckResult is the outcome of an update check
type CheckResult string

const (
	CheckNotAvailable      CheckResult = "not_available"
	CheckAvailable         CheckResult = "available"
	CheckAvailableBlocking CheckResult = "available_blocking"
	CheckFailed            CheckResult = "check_failed"
	CheckFailedBlocking    CheckResult = "check_failed_blocking"
)

// IsBlocking reports whether the host has no usable content and must wait
func (r CheckResult) IsBlocking() bool {
	return r == CheckAvailableBlocking || r == CheckFailedBlocking
}

// UpdateAvailable reports whether the check produced a download plan
func (r CheckResult) UpdateAvailable() bool {
	return r == CheckAvailable || r == CheckAvailableBlocking
}

// Result is the outcome of a download or install step
type Result string

const (
	ResultSucceeded Result = "succeeded"
	ResultFailed    Result = "failed"
)

// EventResult tags a message delivered by a ContentDownloader
type EventResult string

const (
	EventSucceeded EventResult = "succeeded" // final chunk, transfer complete
	EventFailed    EventResult = "failed"    // transport error, cancellation or timeout
	EventFlushed   EventResult = "flushed"   // partial chunk, more to come
)

// DownloadEvent is one message on a downloader channel
type DownloadEvent struct {
	Result EventResult
	Data   []byte
	Err    error
}
