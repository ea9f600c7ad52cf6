// Package testutil はPostgreSQLを使う統合テスト用のヘルパーを提供する。
//
// 接続先の決定順:
//  1. 環境変数 TEST_DATABASE_URL（docker-compose等で起動済みのサーバー）
//  2. 環境変数 TEST_INTEGRATION が設定されていればtestcontainersでpostgres:17-alpineを起動
//  3. どちらも無ければテストをスキップする
//
// テストごとに空のデータベースを新規作成するため、パッケージ間の並列実行でも干渉しない。
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	containerOnce sync.Once
	containerURL  string
	containerErr  error
)

// serverURL は管理用接続に使うサーバーURLを返す。
func serverURL(t *testing.T) string {
	t.Helper()

	if u := os.Getenv("TEST_DATABASE_URL"); u != "" {
		return u
	}
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: set TEST_DATABASE_URL or TEST_INTEGRATION")
	}

	// コンテナはテストバイナリ内で共有し、停止はRyukに任せる。
	containerOnce.Do(func() {
		ctx := context.Background()
		container, err := postgres.Run(ctx,
			"docker.io/postgres:17-alpine",
			postgres.WithDatabase("audiencia"),
			postgres.WithUsername("audiencia"),
			postgres.WithPassword("audiencia"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}
		containerURL, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Fatalf("%v", containerErr)
	}
	return containerURL
}

// NewDatabaseURL は空のテスト用データベースを作成し、その接続URLを返す。
// データベースはテスト終了時に削除される。
func NewDatabaseURL(t *testing.T) string {
	t.Helper()

	base := serverURL(t)

	admin, err := sql.Open("postgres", base)
	if err != nil {
		t.Fatalf("failed to open admin connection: %v", err)
	}
	if err := admin.Ping(); err != nil {
		admin.Close()
		t.Skipf("test database is unreachable (skipping): %v", err)
	}

	name := "audiencia_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.Exec(`CREATE DATABASE ` + name); err != nil {
		admin.Close()
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		defer admin.Close()
		if _, err := admin.Exec(`DROP DATABASE IF EXISTS ` + name + ` WITH (FORCE)`); err != nil {
			t.Logf("failed to drop test database %s: %v", name, err)
		}
	})

	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("failed to parse database URL: %v", err)
	}
	u.Path = "/" + name
	return u.String()
}

// OpenDatabase はNewDatabaseURLで作成したデータベースに接続する。
// 接続はテスト終了時にクローズされる。
func OpenDatabase(t *testing.T, databaseURL string) *sql.DB {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping test database: %v", err)
	}
	return db
}
