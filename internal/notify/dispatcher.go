package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/models"
)

// maxChangeLines caps how many individual changes a notification body lists.
const maxChangeLines = 25

// Dispatcher builds one event per finished scan and fans it out to all
// configured channels. It satisfies the scanner's Notifier contract.
type Dispatcher struct {
	channels []Channel
}

// NewDispatcher creates a Dispatcher from cfg. Only channels with
// IsConfigured() == true are active.
func NewDispatcher(cfg config.NotifyConfig) *Dispatcher {
	d := &Dispatcher{}
	for _, ch := range []Channel{NewWebhook(cfg.Webhook), NewEmail(cfg.Email)} {
		if ch.IsConfigured() {
			d.channels = append(d.channels, ch)
		}
	}
	return d
}

// IsAnyConfigured returns true if at least one channel is ready to send.
func (d *Dispatcher) IsAnyConfigured() bool {
	return len(d.channels) > 0
}

// Notify builds the scan summary event and sends it to every channel.
// Errors are logged but never returned.
func (d *Dispatcher) Notify(ctx context.Context, log *models.ScanLog, entries []models.ScanEntry, pending []models.DetectedChange) {
	if len(d.channels) == 0 {
		return
	}
	// Clean scans with nothing new stay quiet.
	if log.Status == models.ScanStatusCompleted && len(pending) == 0 {
		return
	}
	evt := buildEvent(log, entries, pending)
	for _, ch := range d.channels {
		if err := ch.Send(ctx, evt); err != nil {
			slog.Warn("notify: channel send failed", "channel", ch.Name(), "event", evt.Type, "error", err)
		}
	}
}

func buildEvent(log *models.ScanLog, entries []models.ScanEntry, pending []models.DetectedChange) Event {
	evt := Event{
		Type: EventScanCompleted,
		Metadata: map[string]any{
			"scan_log_id":      log.ID,
			"status":           log.Status,
			"trigger":          log.Trigger,
			"tenants":          log.TotalTenants,
			"environments":     log.TotalEnvironments,
			"objects_scanned":  log.TotalObjectsScanned,
			"changes_detected": log.TotalChangesDetected,
			"errors":           log.TotalErrors,
		},
	}
	switch {
	case log.Status == models.ScanStatusFailed:
		evt.Type = EventScanFailed
		evt.Title = fmt.Sprintf("Scan #%d failed", log.ID)
	case len(pending) > 0:
		evt.Type = EventChangesDetected
		evt.Title = fmt.Sprintf("Scan #%d: %d object change(s) detected", log.ID, len(pending))
	default:
		evt.Title = fmt.Sprintf("Scan #%d completed with %d error(s)", log.ID, log.TotalErrors)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Status: %s\nTargets: %d tenants / %d environments\nObjects scanned: %d\n",
		log.Status, log.TotalTenants, log.TotalEnvironments, log.TotalObjectsScanned)
	if log.ErrorSummary != "" {
		fmt.Fprintf(&body, "\nErrors:\n%s\n", log.ErrorSummary)
	}
	if len(pending) > 0 {
		fmt.Fprintf(&body, "\nChanges:\n")
		for i, c := range pending {
			if i == maxChangeLines {
				fmt.Fprintf(&body, "... and %d more\n", len(pending)-maxChangeLines)
				break
			}
			fmt.Fprintf(&body, "%s %s [%s] %s/%s\n",
				changeSymbol(c.ChangeType), c.FullName, models.KindLabel(c.ObjectType),
				c.TenantCode, c.Environment)
		}
	}
	failed := 0
	for _, e := range entries {
		if !e.Success {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(&body, "\n%d of %d target(s) failed.\n", failed, len(entries))
	}
	evt.Body = body.String()
	return evt
}

func changeSymbol(changeType string) string {
	switch changeType {
	case models.ChangeCreated:
		return "+"
	case models.ChangeDeleted:
		return "-"
	default:
		return "~"
	}
}
