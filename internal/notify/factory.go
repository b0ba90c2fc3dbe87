package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NotifyContactSubmission records an inbound contact form message.
// Missing optional display fields get defensive defaults; required fields
// are the caller's responsibility.
func (s *Service) NotifyContactSubmission(ctx context.Context, ev ContactSubmission) (*Record, error) {
	subject := strings.TrimSpace(ev.Subject)
	if subject == "" {
		subject = "No subject"
	}
	return s.insert(ctx, Record{
		Type:     SeverityInfo,
		Title:    "New Contact Form Submission",
		Message:  fmt.Sprintf("%s (%s) sent a message: %s", ev.Name, ev.Email, subject),
		Category: CategoryContact,
		Metadata: ContactMeta{Name: ev.Name, Email: ev.Email, Subject: subject},
	})
}

// NotifyProjectMilestone fires only when viewCount is exactly a member of the
// configured milestone set; otherwise it returns (nil, nil) and inserts
// nothing. Counts that jump over a milestone do not fire retroactively.
func (s *Service) NotifyProjectMilestone(ctx context.Context, p Project, viewCount int) (*Record, error) {
	if !s.isMilestone(viewCount) {
		return nil, nil
	}
	return s.insert(ctx, Record{
		Type:     SeveritySuccess,
		Title:    "Project Milestone Reached",
		Message:  fmt.Sprintf("%q reached %d views", p.Title, viewCount),
		Category: CategoryMilestone,
		Metadata: MilestoneMeta{
			ProjectID:    p.ID,
			ProjectTitle: p.Title,
			ViewCount:    viewCount,
			Milestone:    viewCount,
		},
	})
}

// NotifyMaintenance records a maintenance event. Severity follows the kind:
// scheduled work warns, emergencies error, completions succeed.
func (s *Service) NotifyMaintenance(ctx context.Context, ev MaintenanceEvent) (*Record, error) {
	var sev Severity
	var title string
	switch ev.Kind {
	case MaintenanceScheduled:
		sev, title = SeverityWarning, "Scheduled Maintenance"
	case MaintenanceEmergency:
		sev, title = SeverityError, "Emergency Maintenance"
	case MaintenanceCompleted:
		sev, title = SeveritySuccess, "Maintenance Completed"
	default:
		sev, title = SeverityInfo, "Maintenance"
	}

	msg := ev.Detail
	if msg == "" {
		msg = string(ev.Kind) + " maintenance"
	}
	meta := MaintenanceMeta{Kind: ev.Kind}
	if !ev.ScheduledFor.IsZero() {
		meta.ScheduledFor = ev.ScheduledFor.Format(time.RFC3339)
		msg = fmt.Sprintf("%s (scheduled for %s)", msg, ev.ScheduledFor.Format("2006-01-02 15:04"))
	}

	return s.insert(ctx, Record{
		Type:     sev,
		Title:    title,
		Message:  msg,
		Category: CategoryMaintenance,
		Metadata: meta,
	})
}

// NotifyActivitySummary records the daily activity roll-up.
func (s *Service) NotifyActivitySummary(ctx context.Context, snap ActivitySnapshot) (*Record, error) {
	if snap.Date == "" {
		snap.Date = time.Now().Format(dateLayout)
	}
	msg := fmt.Sprintf("%d views, %d new messages, %d/%d projects published",
		snap.Views, snap.NewMessages, snap.PublishedProjects, snap.TotalProjects)
	if snap.TopProject != "" {
		msg += fmt.Sprintf("; top project: %s", snap.TopProject)
	}
	return s.insert(ctx, Record{
		Type:     SeverityInfo,
		Title:    "Daily Activity Summary",
		Message:  msg,
		Category: CategorySummary,
		Metadata: SummaryMeta{
			Date:              snap.Date,
			Views:             snap.Views,
			NewMessages:       snap.NewMessages,
			PublishedProjects: snap.PublishedProjects,
			TotalProjects:     snap.TotalProjects,
			TopProject:        snap.TopProject,
		},
	})
}

// NotifyProjectStatus records a publish/feature transition.
func (s *Service) NotifyProjectStatus(ctx context.Context, p Project, oldStatus, newStatus string) (*Record, error) {
	var sev Severity
	switch newStatus {
	case "published", "featured":
		sev = SeveritySuccess
	case "unpublished":
		sev = SeverityWarning
	default:
		sev = SeverityInfo
	}
	return s.insert(ctx, Record{
		Type:     sev,
		Title:    "Project Status Changed",
		Message:  fmt.Sprintf("%q is now %s", p.Title, newStatus),
		Category: CategoryProject,
		Metadata: ProjectMeta{
			ProjectID:    p.ID,
			ProjectTitle: p.Title,
			OldStatus:    oldStatus,
			NewStatus:    newStatus,
		},
	})
}

// NotifyPerformance records one threshold evaluation. A sample whose
// (metric, value) pair already exists in the store is skipped: the check runs
// hourly and the same reading should not pile up. A failed dedup lookup
// suppresses the insert (fail closed).
func (s *Service) NotifyPerformance(ctx context.Context, sample PerformanceSample) (*Record, error) {
	seen, err := s.performanceSeen(ctx, sample.Metric, sample.Value)
	if err != nil {
		return nil, fmt.Errorf("performance dedup lookup: %w", err)
	}
	if seen {
		return nil, nil
	}

	isGood := sample.IsGood()
	sev := SeverityWarning
	title := "Performance Alert"
	if isGood {
		sev = SeveritySuccess
		title = "Performance Target Met"
	}
	return s.insert(ctx, Record{
		Type:  sev,
		Title: title,
		Message: fmt.Sprintf("%s at %.1f (threshold %.1f, trend %s)",
			sample.Metric, sample.Value, sample.Threshold, sample.Trend),
		Category: CategoryPerformance,
		Metadata: PerformanceMeta{
			Metric:    sample.Metric,
			Value:     sample.Value,
			Threshold: sample.Threshold,
			Trend:     sample.Trend,
			IsGood:    isGood,
		},
	})
}

// IsGood reports whether the sample satisfies its threshold: upward trends
// want value >= threshold, downward trends want value <= threshold.
func (p PerformanceSample) IsGood() bool {
	if p.Trend == TrendUp {
		return p.Value >= p.Threshold
	}
	return p.Value <= p.Threshold
}

// NotifySecurity records a security event mapped by severity tier.
func (s *Service) NotifySecurity(ctx context.Context, ev SecurityEvent) (*Record, error) {
	var sev Severity
	switch ev.Severity {
	case SecurityLow:
		sev = SeverityInfo
	case SecurityMedium:
		sev = SeverityWarning
	case SecurityHigh, SecurityCritical:
		sev = SeverityError
	default:
		sev = SeverityInfo
	}
	msg := ev.Kind
	if ev.Detail != "" {
		msg = fmt.Sprintf("%s: %s", ev.Kind, ev.Detail)
	}
	return s.insert(ctx, Record{
		Type:     sev,
		Title:    "Security Alert",
		Message:  msg,
		Category: CategorySecurity,
		Metadata: SecurityMeta{Kind: ev.Kind, Detail: ev.Detail, Severity: ev.Severity},
	})
}

// NotifyBackup records a backup outcome.
func (s *Service) NotifyBackup(ctx context.Context, ev BackupEvent) (*Record, error) {
	sev := SeveritySuccess
	title := "Backup Completed"
	if ev.Status != BackupSucceeded {
		sev = SeverityError
		title = "Backup Failed"
	}
	msg := ev.Detail
	if msg == "" {
		msg = fmt.Sprintf("backup %s", ev.Status)
	}
	return s.insert(ctx, Record{
		Type:     sev,
		Title:    title,
		Message:  msg,
		Category: CategoryBackup,
		Metadata: BackupMeta{Status: ev.Status, Detail: ev.Detail},
	})
}
