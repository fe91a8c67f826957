package repository

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mashtheking/PropertyPro-sub001/internal/database"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// openTestDB はテスト専用スキーマにマイグレーションを適用したDBを返す。
// TEST_DATABASE_URL が未設定、または接続できない場合はスキップする。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	baseURL := os.Getenv("TEST_DATABASE_URL")
	if baseURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	admin, err := sql.Open("postgres", baseURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	defer admin.Close()
	if err := admin.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}

	schema := "repo_test_" + strings.ReplaceAll(uuid.New().String()[:8], "-", "")
	if _, err := admin.Exec(`CREATE SCHEMA ` + schema); err != nil {
		t.Fatalf("スキーマの作成に失敗: %v", err)
	}
	t.Cleanup(func() {
		cleanup, err := sql.Open("postgres", baseURL)
		if err != nil {
			return
		}
		defer cleanup.Close()
		cleanup.Exec(`DROP SCHEMA ` + schema + ` CASCADE`)
	})

	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	scopedURL := baseURL + sep + "search_path=" + schema + ",public"

	if _, err := database.RunMigrations(scopedURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	db, err := database.Open(scopedURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser はプロフィール付きのユーザーを作成する。
func createTestUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: "$2a$10$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := &model.Profile{
		UserID:    user.ID,
		Username:  "agent",
		FullName:  "Test Agent",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := NewPostgresUserRepo(db).CreateWithProfile(context.Background(), user, profile); err != nil {
		t.Fatalf("ユーザーの作成に失敗: %v", err)
	}
	return user
}
