package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/contentsync-go/internal/domain"
)

// NotificationService sends desktop notifications about content updates
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	switch n.config.Method {
	case "osascript":
		return n.sendOSAScript(title, message)
	case "notify-send":
		return n.sendNotifySend(title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}
}

// sendOSAScript sends notification using macOS osascript
func (n *NotificationService) sendOSAScript(title, message string) error {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(message), escapeAppleScript(title))
	if n.config.Sound {
		script += ` sound name "default"`
	}
	cmd := exec.Command("osascript", "-e", script)

	if err := cmd.Run(); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", "osascript"),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))

	return nil
}

// sendNotifySend sends notification using Linux notify-send
func (n *NotificationService) sendNotifySend(title, message string) error {
	cmd := exec.Command("notify-send", title, message)

	if err := cmd.Run(); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", "notify-send"),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))

	return nil
}

// NotifyUpdateAvailable sends notification when new content is found
func (n *NotificationService) NotifyUpdateAvailable(packages int, bytes uint64, blocking bool) {
	title := "Content Update Available"
	if blocking {
		title = "Content Update Required"
	}
	message := fmt.Sprintf("%d package(s), %s to download", packages, formatBytes(bytes))
	n.Send(title, message)
}

// NotifyUpdateInstalled sends notification when content is committed
func (n *NotificationService) NotifyUpdateInstalled(packages, removed int) {
	title := "Content Updated"
	message := fmt.Sprintf("Installed %d package(s), removed %d", packages, removed)
	n.Send(title, message)
}

// NotifyUpdateFailed sends notification when a stage of the update fails
func (n *NotificationService) NotifyUpdateFailed(stage string, err error) {
	title := "Content Update Failed"
	message := fmt.Sprintf("%s failed", stage)
	if err != nil {
		message = fmt.Sprintf("%s failed: %s", stage, truncateString(err.Error(), 60))
	}
	n.Send(title, message)
}

// escapeAppleScript escapes a value embedded in an AppleScript string literal
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
