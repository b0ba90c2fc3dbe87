package notify

import (
	"context"
	"testing"
)

func TestNotifyContactSubmission(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := newTestService(st, newFakeCheckpoints(), nil, Config{})

	rec, err := svc.NotifyContactSubmission(context.Background(), ContactSubmission{
		Name:    "Alice",
		Email:   "a@x.com",
		Subject: "Hi",
		Message: "hello there",
	})
	if err != nil {
		t.Fatalf("NotifyContactSubmission error: %v", err)
	}
	if rec.Type != SeverityInfo {
		t.Fatalf("Type = %s, want %s", rec.Type, SeverityInfo)
	}
	if rec.Title != "New Contact Form Submission" {
		t.Fatalf("Title = %q", rec.Title)
	}
	if want := "Alice (a@x.com) sent a message: Hi"; rec.Message != want {
		t.Fatalf("Message = %q, want %q", rec.Message, want)
	}
	meta, ok := rec.Metadata.(ContactMeta)
	if !ok {
		t.Fatalf("Metadata = %T, want ContactMeta", rec.Metadata)
	}
	if meta.Email != "a@x.com" {
		t.Fatalf("meta.Email = %q", meta.Email)
	}
}

func TestNotifyContactSubmissionDefaultSubject(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := newTestService(st, newFakeCheckpoints(), nil, Config{})

	rec, err := svc.NotifyContactSubmission(context.Background(), ContactSubmission{
		Name:  "Bob",
		Email: "b@x.com",
	})
	if err != nil {
		t.Fatalf("NotifyContactSubmission error: %v", err)
	}
	if want := "Bob (b@x.com) sent a message: No subject"; rec.Message != want {
		t.Fatalf("Message = %q, want %q", rec.Message, want)
	}
}

func TestNotifyProjectMilestone(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := newTestService(st, newFakeCheckpoints(), nil, Config{})
	p := Project{ID: "p1", Title: "Weather App"}

	tests := []struct {
		views int
		fires bool
	}{
		{9, false},
		{10, true},
		{11, false},
		{100, true},
		{99, false},
		{10000, true},
		{10001, false},
	}
	for _, tt := range tests {
		rec, err := svc.NotifyProjectMilestone(context.Background(), p, tt.views)
		if err != nil {
			t.Fatalf("views=%d: error: %v", tt.views, err)
		}
		if (rec != nil) != tt.fires {
			t.Fatalf("views=%d: fired=%v, want %v", tt.views, rec != nil, tt.fires)
		}
	}

	rec, err := svc.NotifyProjectMilestone(context.Background(), p, 250)
	if err != nil {
		t.Fatalf("NotifyProjectMilestone error: %v", err)
	}
	if rec.Type != SeveritySuccess {
		t.Fatalf("Type = %s, want %s", rec.Type, SeveritySuccess)
	}
	if want := `"Weather App" reached 250 views`; rec.Message != want {
		t.Fatalf("Message = %q, want %q", rec.Message, want)
	}
	meta := rec.Metadata.(MilestoneMeta)
	if meta.Milestone != 250 || meta.ViewCount != 250 || meta.ProjectID != "p1" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestNotifyProjectMilestoneCustomSet(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := newTestService(st, newFakeCheckpoints(), nil, Config{Milestones: []int{5}})

	if rec, _ := svc.NotifyProjectMilestone(context.Background(), Project{ID: "p"}, 10); rec != nil {
		t.Fatal("default milestone fired despite custom set")
	}
	if rec, _ := svc.NotifyProjectMilestone(context.Background(), Project{ID: "p"}, 5); rec == nil {
		t.Fatal("custom milestone did not fire")
	}
}

func TestNotifyMaintenanceSeverity(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := newTestService(st, newFakeCheckpoints(), nil, Config{})

	tests := []struct {
		kind  MaintenanceKind
		sev   Severity
		title string
	}{
		{MaintenanceScheduled, SeverityWarning, "Scheduled Maintenance"},
		{MaintenanceEmergency, SeverityError, "Emergency Maintenance"},
		{MaintenanceCompleted, SeveritySuccess, "Maintenance Completed"},
	}
	for _, tt := range tests {
		rec, err := svc.NotifyMaintenance(context.Background(), MaintenanceEvent{Kind: tt.kind, Detail: "db upgrade"})
		if err != nil {
			t.Fatalf("kind=%s: error: %v", tt.kind, err)
		}
		if rec.Type != tt.sev {
			t.Fatalf("kind=%s: Type = %s, want %s", tt.kind, rec.Type, tt.sev)
		}
		if rec.Title != tt.title {
			t.Fatalf("kind=%s: Title = %q, want %q", tt.kind, rec.Title, tt.title)
		}
	}
}

func TestNotifyProjectStatusSeverity(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := newTestService(st, newFakeCheckpoints(), nil, Config{})
	p := Project{ID: "p1", Title: "Portfolio"}

	tests := []struct {
		newStatus string
		sev       Severity
	}{
		{"published", SeveritySuccess},
		{"featured", SeveritySuccess},
		{"unpublished", SeverityWarning},
		{"archived", SeverityInfo},
	}
	for _, tt := range tests {
		rec, err := svc.NotifyProjectStatus(context.Background(), p, "draft", tt.newStatus)
		if err != nil {
			t.Fatalf("status=%s: error: %v", tt.newStatus, err)
		}
		if rec.Type != tt.sev {
			t.Fatalf("status=%s: Type = %s, want %s", tt.newStatus, rec.Type, tt.sev)
		}
	}

	rec, _ := svc.NotifyProjectStatus(context.Background(), p, "unpublished", "published")
	if want := `"Portfolio" is now published`; rec.Message != want {
		t.Fatalf("Message = %q, want %q", rec.Message, want)
	}
}

func TestNotifySecuritySeverity(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := newTestService(st, newFakeCheckpoints(), nil, Config{})

	tests := []struct {
		tier SecurityTier
		sev  Severity
	}{
		{SecurityLow, SeverityInfo},
		{SecurityMedium, SeverityWarning},
		{SecurityHigh, SeverityError},
		{SecurityCritical, SeverityError},
	}
	for _, tt := range tests {
		rec, err := svc.NotifySecurity(context.Background(), SecurityEvent{
			Kind:     "failed_login",
			Severity: tt.tier,
		})
		if err != nil {
			t.Fatalf("tier=%s: error: %v", tt.tier, err)
		}
		if rec.Type != tt.sev {
			t.Fatalf("tier=%s: Type = %s, want %s", tt.tier, rec.Type, tt.sev)
		}
	}
}

func TestNotifyBackup(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := newTestService(st, newFakeCheckpoints(), nil, Config{})

	ok, err := svc.NotifyBackup(context.Background(), BackupEvent{Status: BackupSucceeded})
	if err != nil {
		t.Fatalf("NotifyBackup error: %v", err)
	}
	if ok.Type != SeveritySuccess || ok.Title != "Backup Completed" {
		t.Fatalf("unexpected success record: %s %q", ok.Type, ok.Title)
	}

	fail, err := svc.NotifyBackup(context.Background(), BackupEvent{Status: BackupFailed, Detail: "disk full"})
	if err != nil {
		t.Fatalf("NotifyBackup error: %v", err)
	}
	if fail.Type != SeverityError || fail.Title != "Backup Failed" {
		t.Fatalf("unexpected failure record: %s %q", fail.Type, fail.Title)
	}
	if fail.Message != "disk full" {
		t.Fatalf("Message = %q", fail.Message)
	}
}

func TestNotifyPerformanceDedup(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := newTestService(st, newFakeCheckpoints(), nil, Config{})
	sample := PerformanceSample{Metric: "avg_response_ms", Value: 620, Threshold: 500, Trend: TrendDown}

	first, err := svc.NotifyPerformance(context.Background(), sample)
	if err != nil {
		t.Fatalf("first NotifyPerformance error: %v", err)
	}
	if first == nil {
		t.Fatal("first sample did not fire")
	}
	if first.Type != SeverityWarning || first.Title != "Performance Alert" {
		t.Fatalf("unexpected record: %s %q", first.Type, first.Title)
	}

	second, err := svc.NotifyPerformance(context.Background(), sample)
	if err != nil {
		t.Fatalf("second NotifyPerformance error: %v", err)
	}
	if second != nil {
		t.Fatal("identical sample was not deduplicated")
	}

	changed := sample
	changed.Value = 480
	third, err := svc.NotifyPerformance(context.Background(), changed)
	if err != nil {
		t.Fatalf("third NotifyPerformance error: %v", err)
	}
	if third == nil {
		t.Fatal("changed value did not fire")
	}
	if third.Type != SeveritySuccess || third.Title != "Performance Target Met" {
		t.Fatalf("unexpected record: %s %q", third.Type, third.Title)
	}
}

func TestNotifyPerformanceFailsClosed(t *testing.T) {
	t.Parallel()
	st := &fakeStore{queryErr: ErrStoreClosed}
	svc := newTestService(st, newFakeCheckpoints(), nil, Config{})

	rec, err := svc.NotifyPerformance(context.Background(), PerformanceSample{Metric: "m", Value: 1})
	if err == nil {
		t.Fatal("expected error when dedup lookup fails")
	}
	if rec != nil {
		t.Fatal("record inserted despite failed dedup lookup")
	}
}

func TestPerformanceSampleIsGood(t *testing.T) {
	t.Parallel()
	tests := []struct {
		trend     Trend
		value     float64
		threshold float64
		good      bool
	}{
		{TrendUp, 100, 90, true},
		{TrendUp, 90, 90, true},
		{TrendUp, 80, 90, false},
		{TrendDown, 400, 500, true},
		{TrendDown, 500, 500, true},
		{TrendDown, 600, 500, false},
	}
	for _, tt := range tests {
		s := PerformanceSample{Trend: tt.trend, Value: tt.value, Threshold: tt.threshold}
		if got := s.IsGood(); got != tt.good {
			t.Fatalf("trend=%s value=%v threshold=%v: IsGood = %v, want %v",
				tt.trend, tt.value, tt.threshold, got, tt.good)
		}
	}
}
