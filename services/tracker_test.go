package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"threat-radar/models"

	"gorm.io/gorm"
)

func assessmentJSON(t *testing.T, a Assessment) string {
	t.Helper()
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("failed to marshal assessment: %v", err)
	}
	return string(b)
}

// linkEvidence legt ein klassifiziertes, relevantes Item an und verknüpft
// es mit dem Threat.
func linkEvidence(t *testing.T, db *gorm.DB, threat *models.Threat, title string) *models.Item {
	t.Helper()
	now := time.Now().UTC()
	relevant := true
	score := 0.8
	impact := models.ImpactSignificant
	item := &models.Item{
		Title:                   title,
		Content:                 "content of " + title,
		FetchedAt:               now,
		IsRelevant:              &relevant,
		RelevanceScore:          &score,
		ImpactLevel:             &impact,
		ClassificationReasoning: "clear capability gain",
		ClassifiedAt:            &now,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to create item %q: %v", title, err)
	}
	if err := db.Model(item).Association("RelatedThreats").Append(threat); err != nil {
		t.Fatalf("failed to link item to threat: %v", err)
	}
	return item
}

func TestAssessWithoutEvidence(t *testing.T) {
	db := newTestDB(t)
	threat := createThreat(t, db, "Screening Evasion", "screening_evasion")

	stub := &stubCompleter{}
	tracker := NewTrackerService(db, stub, testLogger())

	outcome, err := tracker.Assess(context.Background(), threat.ID)
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}
	if outcome.Updated {
		t.Error("Updated = true, want false without evidence")
	}
	if outcome.Message != "no recent relevant items to assess" {
		t.Errorf("Message = %q", outcome.Message)
	}
	if stub.calls != 0 {
		t.Errorf("model calls = %d, want 0 without evidence", stub.calls)
	}

	var auditCount int64
	db.Model(&models.ThreatUpdate{}).Count(&auditCount)
	if auditCount != 0 {
		t.Errorf("audit rows = %d, want 0", auditCount)
	}
}

func TestAssessUnknownThreat(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTrackerService(db, &stubCompleter{}, testLogger())

	_, err := tracker.Assess(context.Background(), 9999)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("error = %v, want gorm.ErrRecordNotFound", err)
	}
}

func TestAssessAppliesUpdateWithAudit(t *testing.T) {
	db := newTestDB(t)
	threat := createThreat(t, db, "Screening Evasion", "screening_evasion")
	linkEvidence(t, db, threat, "New evasion technique")

	stub := &stubCompleter{responses: []string{assessmentJSON(t, Assessment{
		ShouldUpdate:        true,
		NewFeasibilityScore: 3.5,
		NewThreatLevel:      "high",
		NewTrend:            "increasing",
		NewTimelineEstimate: "1-2 years",
		Confidence:          0.8,
		Reasoning:           "capability demonstrated in the wild",
	})}}
	tracker := NewTrackerService(db, stub, testLogger())

	outcome, err := tracker.Assess(context.Background(), threat.ID)
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}
	if !outcome.Updated {
		t.Fatal("Updated = false, want true")
	}
	if outcome.NewScore != 3.5 || outcome.NewLevel != "high" {
		t.Errorf("outcome = %+v", outcome)
	}

	var reloaded models.Threat
	if err := db.First(&reloaded, threat.ID).Error; err != nil {
		t.Fatalf("failed to reload threat: %v", err)
	}
	if reloaded.FeasibilityScore != 3.5 {
		t.Errorf("FeasibilityScore = %v, want 3.5", reloaded.FeasibilityScore)
	}
	if reloaded.ThreatLevel != models.ThreatLevelHigh {
		t.Errorf("ThreatLevel = %v, want high", reloaded.ThreatLevel)
	}
	if reloaded.Trend != models.TrendIncreasing {
		t.Errorf("Trend = %v, want increasing", reloaded.Trend)
	}
	if reloaded.TimelineEstimate != "1-2 years" {
		t.Errorf("TimelineEstimate = %q", reloaded.TimelineEstimate)
	}
	if reloaded.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", reloaded.Confidence)
	}

	var audits []models.ThreatUpdate
	if err := db.Find(&audits).Error; err != nil {
		t.Fatalf("failed to load audit rows: %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(audits))
	}
	audit := audits[0]
	if audit.ThreatID != threat.ID {
		t.Errorf("audit ThreatID = %d, want %d", audit.ThreatID, threat.ID)
	}
	if audit.PreviousScore != 1.0 || audit.NewScore != 3.5 {
		t.Errorf("audit scores = %v -> %v, want 1.0 -> 3.5", audit.PreviousScore, audit.NewScore)
	}
	if audit.PreviousLevel != "low" || audit.NewLevel != "high" {
		t.Errorf("audit levels = %q -> %q, want low -> high", audit.PreviousLevel, audit.NewLevel)
	}
}

func TestAssessDeclinedUpdate(t *testing.T) {
	db := newTestDB(t)
	threat := createThreat(t, db, "Screening Evasion", "screening_evasion")
	linkEvidence(t, db, threat, "Minor note")

	stub := &stubCompleter{responses: []string{assessmentJSON(t, Assessment{
		ShouldUpdate: false,
		Reasoning:    "evidence does not change the picture",
	})}}
	tracker := NewTrackerService(db, stub, testLogger())

	outcome, err := tracker.Assess(context.Background(), threat.ID)
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}
	if outcome.Updated {
		t.Error("Updated = true, want false")
	}
	if outcome.Message != "no update needed" {
		t.Errorf("Message = %q", outcome.Message)
	}
	if outcome.Reasoning != "evidence does not change the picture" {
		t.Errorf("Reasoning = %q", outcome.Reasoning)
	}

	var reloaded models.Threat
	db.First(&reloaded, threat.ID)
	if reloaded.FeasibilityScore != 1.0 || reloaded.ThreatLevel != models.ThreatLevelLow {
		t.Error("declined update must not mutate the threat")
	}
	var auditCount int64
	db.Model(&models.ThreatUpdate{}).Count(&auditCount)
	if auditCount != 0 {
		t.Errorf("audit rows = %d, want 0", auditCount)
	}
}

func TestAssessRejectsUnknownLevel(t *testing.T) {
	db := newTestDB(t)
	threat := createThreat(t, db, "Screening Evasion", "screening_evasion")
	linkEvidence(t, db, threat, "Evidence")

	stub := &stubCompleter{responses: []string{assessmentJSON(t, Assessment{
		ShouldUpdate:        true,
		NewFeasibilityScore: 5.0,
		NewThreatLevel:      "apocalyptic",
		NewTrend:            "increasing",
	})}}
	tracker := NewTrackerService(db, stub, testLogger())

	_, err := tracker.Assess(context.Background(), threat.ID)
	var enumErr *models.InvalidEnumError
	if !errors.As(err, &enumErr) {
		t.Fatalf("error type = %T, want *models.InvalidEnumError", err)
	}

	var reloaded models.Threat
	db.First(&reloaded, threat.ID)
	if reloaded.FeasibilityScore != 1.0 {
		t.Error("rejected enum must not mutate the threat")
	}
	var auditCount int64
	db.Model(&models.ThreatUpdate{}).Count(&auditCount)
	if auditCount != 0 {
		t.Errorf("audit rows = %d, want 0", auditCount)
	}
}

func TestAssessAllPartialFailure(t *testing.T) {
	db := newTestDB(t)
	first := createThreat(t, db, "Screening Evasion", "screening_evasion")
	createThreat(t, db, "Pathogen Design Automation", "pathogen_design")
	linkEvidence(t, db, first, "Evidence")

	// Erste Bewertung liefert ungültiges JSON, die zweite läuft ohne
	// Evidenz durch und wird ohne Modellaufruf abgeschlossen.
	stub := &stubCompleter{responses: []string{"not json"}}
	tracker := NewTrackerService(db, stub, testLogger())

	outcomes := tracker.AssessAll(context.Background())
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	if outcomes[0].Error == "" {
		t.Error("first outcome should carry the decode error")
	}
	if outcomes[1].Error != "" || outcomes[1].Result == nil || outcomes[1].Result.Updated {
		t.Errorf("second outcome = %+v, want clean no-op", outcomes[1])
	}
}

func TestDashboardCountsRelevantItems(t *testing.T) {
	db := newTestDB(t)
	first := createThreat(t, db, "Screening Evasion", "screening_evasion")
	second := createThreat(t, db, "Pathogen Design Automation", "pathogen_design")
	linkEvidence(t, db, first, "Evidence one")
	linkEvidence(t, db, first, "Evidence two")

	tracker := NewTrackerService(db, &stubCompleter{}, testLogger())
	statuses, err := tracker.Dashboard()
	if err != nil {
		t.Fatalf("Dashboard returned error: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if statuses[0].ID != first.ID || statuses[0].RelevantItems != 2 {
		t.Errorf("first status = %+v, want 2 relevant items", statuses[0])
	}
	if statuses[1].ID != second.ID || statuses[1].RelevantItems != 0 {
		t.Errorf("second status = %+v, want 0 relevant items", statuses[1])
	}
}
