// Package notification provides cross-platform desktop notifications.
// It uses the beeep library to send notifications on macOS, Linux, and Windows.
package notification

import (
	"fmt"
	"strings"

	"github.com/gen2brain/beeep"
	"github.com/zhubert/arbor/internal/logger"
)

// AppName is the title used for every notification.
const AppName = "arbor"

// notifyFunc matches beeep.Notify.
type notifyFunc func(title, message string, icon any) error

var notify notifyFunc = beeep.Notify

// SetNotifier replaces the notification backend. Used by tests.
func SetNotifier(fn func(title, message string, icon any) error) {
	notify = fn
}

// ResetNotifier restores the beeep backend.
func ResetNotifier() {
	notify = beeep.Notify
}

// Send sends a desktop notification with the given title and message.
func Send(title, message string) error {
	logger.Debug("Notification: Sending notification - title=%q, message=%q", title, message)
	// Empty icon lets beeep use the platform default
	err := notify(title, message, "")
	if err != nil {
		logger.Warn("Notification: Failed to send notification: %v", err)
	}
	return err
}

// MergeCompleted announces a batch that landed on target.
func MergeCompleted(target string, branches []string) error {
	return Send(AppName, fmt.Sprintf("Merged %s into %s", describe(branches), target))
}

// ConflictsDetected announces a batch blocked by predicted conflicts.
func ConflictsDetected(target string, files []string) error {
	noun := "files"
	if len(files) == 1 {
		noun = "file"
	}
	return Send(AppName, fmt.Sprintf("Merge into %s blocked: %d conflicting %s", target, len(files), noun))
}

func describe(branches []string) string {
	switch len(branches) {
	case 0:
		return "nothing"
	case 1:
		return branches[0]
	case 2:
		return strings.Join(branches, " and ")
	default:
		return fmt.Sprintf("%s and %d more", branches[0], len(branches)-1)
	}
}
