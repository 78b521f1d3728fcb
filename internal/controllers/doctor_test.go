package controllers

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Ironcock/GameReleaseFetcher/internal/models"
	"github.com/Ironcock/GameReleaseFetcher/internal/pipeline"
)

func TestDiagnose(t *testing.T) {
	src := &pageList{pages: [][]models.CatalogRecord{{
		game(1, "Harbor Lights", 40),
		{ID: 2, Name: "Odd Tags", Added: 2},
		game(3, "Night Club", 9, "nudity"),
		game(4, "Harbour Lights", 12),
		game(5, "Pixel Porn Quest", 400),
	}}}
	logger := quietLogger()
	policy := pipeline.DefaultPolicy()
	classifier, err := pipeline.NewSafetyClassifier(policy)
	if err != nil {
		t.Fatalf("NewSafetyClassifier() error = %v", err)
	}

	doctor := NewDoctorController(
		pipeline.NewPager(src, pipeline.PagerOptions{PageSize: 20, MaxPages: 1}, logger),
		classifier,
		pipeline.NewDeduplicator(policy),
		logger,
	)

	report, err := doctor.Diagnose(context.Background(), fixedNow, 20)
	if err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}

	if len(report.Diagnoses) != 5 || report.Accepted() != 3 {
		t.Errorf("Expected 5 diagnoses with 3 accepted, got %d/%d", len(report.Diagnoses), report.Accepted())
	}
	if report.Diagnoses[2].Verdict.Reason != pipeline.ReasonRiskyTag {
		t.Errorf("Expected risky tag rejection, got %+v", report.Diagnoses[2].Verdict)
	}
	if report.Diagnoses[4].Verdict.Reason != pipeline.ReasonTitleKeyword {
		t.Errorf("Expected title keyword rejection, got %+v", report.Diagnoses[4].Verdict)
	}

	if len(report.NearDuplicates) != 1 {
		t.Fatalf("Expected 1 near duplicate, got %+v", report.NearDuplicates)
	}
	if nd := report.NearDuplicates[0]; nd.A != "harborlights" || nd.B != "harbourlights" || nd.Distance != 1 {
		t.Errorf("Unexpected near duplicate: %+v", nd)
	}

	var out bytes.Buffer
	if err := report.Write(&out); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for _, want := range []string{
		"GAME: Harbor Lights (Added: 40)",
		"REJECTED (risky_tag_low_popularity: nudity)",
		"REJECTED (title_keyword: porn)",
		"harborlights ~ harbourlights (distance 1)",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Report missing %q:\n%s", want, out.String())
		}
	}
}

func TestDiagnoseTransportError(t *testing.T) {
	src := &pageList{failAt: 1}
	logger := quietLogger()
	classifier, _ := pipeline.NewSafetyClassifier(pipeline.DefaultPolicy())

	doctor := NewDoctorController(
		pipeline.NewPager(src, pipeline.PagerOptions{PageSize: 20, MaxPages: 1}, logger),
		classifier,
		pipeline.NewDeduplicator(pipeline.DefaultPolicy()),
		logger,
	)

	if _, err := doctor.Diagnose(context.Background(), fixedNow, 20); err == nil {
		t.Error("Expected error")
	}
}

func TestNearDuplicatesIgnoresShortKeys(t *testing.T) {
	if pairs := nearDuplicates([]string{"doom", "dome", "quake"}); len(pairs) != 0 {
		t.Errorf("Short keys should be skipped, got %+v", pairs)
	}
}
