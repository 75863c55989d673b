package storage

import "testing"

func TestBuildUploadArchivePath(t *testing.T) {
	key, err := BuildUploadArchivePath("session-1", "patients", "upload-42", "csv")
	if err != nil {
		t.Fatalf("BuildUploadArchivePath() error = %v", err)
	}
	want := "sessions/session-1/patients/upload-42.csv"
	if key != want {
		t.Fatalf("BuildUploadArchivePath() = %q, want %q", key, want)
	}
}

func TestBuildUploadArchivePathNormalizesExtension(t *testing.T) {
	key, err := BuildUploadArchivePath("session-1", "_2026_cohort", "upload-1", ".JSON")
	if err != nil {
		t.Fatalf("BuildUploadArchivePath() error = %v", err)
	}
	want := "sessions/session-1/_2026_cohort/upload-1.json"
	if key != want {
		t.Fatalf("BuildUploadArchivePath() = %q, want %q", key, want)
	}
}

func TestBuildUploadArchivePathRejectsTraversal(t *testing.T) {
	if _, err := BuildUploadArchivePath("../oops", "patients", "upload-1", "csv"); err == nil {
		t.Fatal("expected invalid session id error")
	}
	if _, err := BuildUploadArchivePath("session-1", "patients", "upload-1", "c/v"); err == nil {
		t.Fatal("expected invalid extension error")
	}
}
