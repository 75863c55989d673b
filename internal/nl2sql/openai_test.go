package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/healthlens/healthlens/internal/schema"
)

func testTables() []schema.Table {
	return []schema.Table{{
		Name:     "patients",
		RowCount: 3,
		Columns: []schema.Column{
			{Name: "patient_id", Type: "BIGINT", Samples: []string{"1", "2"}},
			{Name: "condition", Type: "VARCHAR", Samples: []string{"asthma"}},
		},
	}}
}

func TestStripMarkdownSQL(t *testing.T) {
	got := stripMarkdownSQL("```sql\nSELECT 1;\n```")
	if got != "SELECT 1;" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
}

func TestBuildPromptsRequiresTables(t *testing.T) {
	_, _, err := BuildPrompts(Request{Question: "how many rows"})
	if !errors.Is(err, ErrNoDataLoaded) {
		t.Fatalf("error = %v, want ErrNoDataLoaded", err)
	}
}

func TestBuildPromptsIncludesSchemaAndRules(t *testing.T) {
	_, user, err := BuildPrompts(Request{
		Question: "average heart rate",
		Tables:   testTables(),
		RowLimit: 50,
	})
	if err != nil {
		t.Fatalf("BuildPrompts() error = %v", err)
	}
	for _, fragment := range []string{"patients", "patient_id", "BIGINT", "average heart rate", "LIMIT 50"} {
		if !strings.Contains(user, fragment) {
			t.Fatalf("user prompt missing %q:\n%s", fragment, user)
		}
	}
}

func TestTranslateParsesChatCompletion(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "```sql\nSELECT COUNT(*) FROM patients\n```"}},
			},
		})
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-5",
	})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}

	result, err := translator.Translate(context.Background(), Request{
		SessionID: "s1",
		Question:  "how many patients",
		Tables:    testTables(),
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT COUNT(*) FROM patients" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Model != "gpt-5" {
		t.Fatalf("Model = %q", result.Model)
	}
	if captured["model"] != "gpt-5" {
		t.Fatalf("request model = %v", captured["model"])
	}
}

func TestTranslateSurfacesUpstreamErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}

	if _, err := translator.Translate(context.Background(), Request{Tables: testTables()}); err == nil {
		t.Fatal("expected error for upstream failure")
	}
}

func TestTranslateTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}

	start := time.Now()
	if _, err := translator.Translate(context.Background(), Request{Tables: testTables()}); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Fatalf("timeout took %v", elapsed)
	}
}

func TestTranslateRejectsEmptyModelOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "   "}},
			},
		})
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}

	if _, err := translator.Translate(context.Background(), Request{Tables: testTables()}); err == nil {
		t.Fatal("expected error for empty SQL")
	}
}
