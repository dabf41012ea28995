package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bww-mods/benchbot/reviewbot/jobstore"
	"github.com/bww-mods/benchbot/reviewbot/platform"
	"github.com/bww-mods/benchbot/reviewbot/review"
	"github.com/bww-mods/benchbot/util/cliutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := cliutil.SetupDatabase(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", name), 1)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqldb, err := db.DB()
		if err == nil {
			sqldb.Close()
		}
	})
	return db
}

func TestHealthCheck(t *testing.T) {
	db := testDB(t)
	srv, err := NewServer(db, Config{
		Review: review.DefaultConfig("woodworking"),
		Client: platform.NewMockClient("benchbot"),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/_health", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestNewServerRequiresCredentials(t *testing.T) {
	_, err := NewServer(testDB(t), Config{Review: review.DefaultConfig("woodworking")})
	assert.Error(t, err)
}

func TestPrintStatus(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	store, err := jobstore.NewStore(db, nil)
	require.NoError(t, err)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := jobstore.NewPostRecord("abc", created, created.Add(930*time.Second), created.Add(4*time.Hour), []string{"Beginner", "Not Beginner"})
	require.NoError(t, store.Insert(ctx, rec))

	var out bytes.Buffer
	require.NoError(t, printStatus(ctx, db, nil, &out))
	assert.Contains(t, out.String(), "abc\tpending\treply=-")
	assert.Contains(t, out.String(), "review_due=2024-03-01T12:15:30Z")
	assert.Contains(t, out.String(), "records=1 outbox=0")
}
