//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/stemsi/wellcheck-backend/internal/catalog"
	"github.com/stemsi/wellcheck-backend/internal/config"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080/api/v1"
	e2eSchoolID    = 901
	studentAccess  = "e2e_student"
	studentName    = "E2E Student"
)

var (
	baseURL      string
	dbURL        string
	studentID    int
	adminToken   string
	studentToken string
	instrumentID string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	// Server and tests must share JWT_SECRET and DATABASE_URL.
	cfg := config.Load()
	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	dbURL = cfg.DatabaseURL

	// 1. Setup Database (Clean and Seed Student)
	if err := setupStudent(); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	// 2. Mint tokens the way the identity service would.
	auth := service.NewAuthService(cfg)
	var err error
	adminToken, err = auth.GenerateAdminToken(1, 0, []string{
		service.PermissionInstrumentsRead,
		service.PermissionInstrumentsWrite,
		service.PermissionAnalyticsRead,
		service.PermissionStudentsRead,
	})
	if err == nil {
		studentToken, err = auth.GenerateStudentToken(studentID, e2eSchoolID)
	}
	if err != nil {
		fmt.Printf("Token setup failed: %v\n", err)
		os.Exit(1)
	}

	// 3. Run Tests
	os.Exit(m.Run())
}

func setupStudent() error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	// Cleanup previous test data (order matters due to FK)
	cleanup := []string{
		`DELETE FROM attempt_events WHERE student_id IN (SELECT id FROM students WHERE school_id = $1)`,
		`DELETE FROM submissions WHERE school_id = $1`,
		`DELETE FROM students WHERE school_id = $1`,
	}
	for _, q := range cleanup {
		if _, err := conn.Exec(ctx, q, e2eSchoolID); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}

	err = conn.QueryRow(ctx,
		`INSERT INTO students (access_id, name, class_label, class_section, school_id)
		 VALUES ($1, $2, 'Grade 9', 'B', $3) RETURNING id`,
		studentAccess, studentName, e2eSchoolID,
	).Scan(&studentID)
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

func assignInstrument(id string) error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx,
		`INSERT INTO student_instruments (student_id, instrument_id) VALUES ($1, $2)`,
		studentID, id)
	return err
}

func TestE2EFlow(t *testing.T) {
	// Step 1: Create Instrument (Admin)
	t.Run("CreateInstrument", func(t *testing.T) {
		def := catalog.Default()
		reqBody := model.InstrumentRequest{
			Title:       "E2E Wellness Check",
			Description: def.Description,
			Questions:   def.Questions,
			Sections:    def.Sections,
			Buckets:     def.Buckets,
		}
		resp, err := post("/admin/instruments", reqBody, adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data model.Instrument `json:"data"`
		}
		decodeJSON(t, resp, &body)
		instrumentID = body.Data.ID.String()
		if err := assignInstrument(instrumentID); err != nil {
			t.Fatalf("assign: %v", err)
		}
		t.Logf("Instrument Created: %s", instrumentID)
	})

	// Step 2: Lobby lists the instrument as pending
	t.Run("CheckLobby", func(t *testing.T) {
		resp, err := get("/student/instruments", studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Instruments []model.InstrumentSummary `json:"instruments"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)

		found := false
		for _, s := range body.Data.Instruments {
			if s.InstrumentID.String() == instrumentID && s.Status == model.SubmissionStatusPending {
				found = true
				break
			}
		}
		if !found {
			t.Fatal("Instrument not found in lobby as pending")
		}
	})

	// Step 3: Save part of the attempt, then resume it
	t.Run("SaveAndResume", func(t *testing.T) {
		resp, err := post(attemptPath("progress"), map[string]any{
			"answers":             answers(10),
			"last_question_index": 10,
			"time_taken":          60,
		}, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("save status %d", resp.StatusCode)
		}

		resp, err = post(attemptPath("attempt"), nil, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Data model.AttemptPayload `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.Resume == nil || body.Data.Resume.LastQuestionIndex != 10 {
			t.Fatalf("expected resume at question 10, got %+v", body.Data.Resume)
		}
	})

	// Step 4: Submit, then submit again (Expect 409)
	t.Run("Submit", func(t *testing.T) {
		reqBody := map[string]any{
			"answers":             answers(32),
			"last_question_index": 31,
			"time_taken":          240,
			"consent_given":       true,
		}
		for i, want := range []int{http.StatusOK, http.StatusConflict} {
			resp, err := post(attemptPath("submit"), reqBody, studentToken)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != want {
				t.Fatalf("submit #%d: status %d, want %d: %s", i+1, resp.StatusCode, want, readBody(resp))
			}
			resp.Body.Close()
		}
	})

	// Step 5: Verify Permissions (Student tries Admin action)
	t.Run("VerifyPermissionFails", func(t *testing.T) {
		resp, err := get("/admin/analytics", studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected 403/401, got %d", resp.StatusCode)
		}
	})

	// Step 6: Analytics (Admin)
	t.Run("GetAnalytics", func(t *testing.T) {
		resp, err := get(fmt.Sprintf("/admin/analytics?instrument_id=%s&school_id=%d", instrumentID, e2eSchoolID), adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				TotalSubmissions int `json:"total_submissions"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.TotalSubmissions != 1 {
			t.Errorf("Expected 1 submission, got %d", body.Data.TotalSubmissions)
		}

		// Filter by wrong class
		respEmpty, err := get(fmt.Sprintf("/admin/analytics?instrument_id=%s&school_id=%d&class=Grade%%2012", instrumentID, e2eSchoolID), adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer respEmpty.Body.Close()
		decodeJSON(t, respEmpty, &body)
		if body.Data.TotalSubmissions != 0 {
			t.Errorf("Expected empty report for wrong class, got %d", body.Data.TotalSubmissions)
		}
	})
}

// Helpers

func attemptPath(suffix string) string {
	return fmt.Sprintf("/student/instruments/%s/%s", instrumentID, suffix)
}

func answers(n int) []map[string]int {
	out := make([]map[string]int, n)
	for i := range out {
		out[i] = map[string]int{"selected_option": i % 4, "time_taken": 3}
	}
	return out
}

func post(path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest("POST", baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func get(path string, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
