package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGetUser(t *testing.T) {
	db := testDB(t)

	expiry := time.Now().Add(time.Hour).Round(time.Second)
	user := &models.User{
		ID:             "rc-100",
		Name:           "Alice",
		Platform:       models.PlatformClio,
		Hostname:       "app.clio.com",
		AuthType:       models.AuthTypeOAuth,
		AccessToken:    "tok",
		RefreshToken:   "refresh",
		TokenExpiry:    &expiry,
		TimezoneOffset: 60,
		RCUserNumber:   "+441234567890",
	}

	if err := SaveUser(db, user); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	got, err := GetUser(db, "rc-100", models.PlatformClio)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected user, got nil")
	}
	if got.AccessToken != "tok" || got.RefreshToken != "refresh" {
		t.Errorf("tokens not round-tripped: %+v", got)
	}
	if got.TokenExpiry == nil || !got.TokenExpiry.Equal(expiry) {
		t.Errorf("token expiry not round-tripped: %v", got.TokenExpiry)
	}
	if got.TimezoneOffset != 60 {
		t.Errorf("timezone offset = %d", got.TimezoneOffset)
	}
}

func TestSaveUserUpsertsExisting(t *testing.T) {
	db := testDB(t)

	user := &models.User{
		ID:          "rc-100",
		Platform:    models.PlatformPipedrive,
		Hostname:    "acme.pipedrive.com",
		AuthType:    models.AuthTypeOAuth,
		AccessToken: "first",
	}
	if err := SaveUser(db, user); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	user.AccessToken = "second"
	if err := SaveUser(db, user); err != nil {
		t.Fatalf("second SaveUser failed: %v", err)
	}

	got, err := GetUser(db, "rc-100", models.PlatformPipedrive)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.AccessToken != "second" {
		t.Errorf("expected replaced token, got %q", got.AccessToken)
	}
}

func TestGetUserScopedByPlatform(t *testing.T) {
	db := testDB(t)

	for _, platform := range []models.Platform{models.PlatformClio, models.PlatformInsightly} {
		user := &models.User{
			ID:          "rc-100",
			Platform:    platform,
			Hostname:    "host",
			AuthType:    models.AuthTypeAPIKey,
			AccessToken: "key-" + string(platform),
		}
		if err := SaveUser(db, user); err != nil {
			t.Fatalf("SaveUser(%s) failed: %v", platform, err)
		}
	}

	got, err := GetUser(db, "rc-100", models.PlatformInsightly)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.AccessToken != "key-insightly" {
		t.Errorf("wrong row returned: %+v", got)
	}

	missing, err := GetUser(db, "rc-100", models.PlatformAccelerate)
	if err != nil {
		t.Fatalf("GetUser missing failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unconnected platform, got %+v", missing)
	}
}

func TestUpdateUserTokens(t *testing.T) {
	db := testDB(t)

	user := &models.User{
		ID:          "rc-7",
		Platform:    models.PlatformClio,
		Hostname:    "app.clio.com",
		AuthType:    models.AuthTypeOAuth,
		AccessToken: "old",
	}
	if err := SaveUser(db, user); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	expiry := time.Now().Add(30 * time.Minute).Round(time.Second)
	if err := UpdateUserTokens(db, "rc-7", models.PlatformClio, "new", "new-refresh", &expiry); err != nil {
		t.Fatalf("UpdateUserTokens failed: %v", err)
	}

	got, err := GetUser(db, "rc-7", models.PlatformClio)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.AccessToken != "new" || got.RefreshToken != "new-refresh" {
		t.Errorf("tokens not updated: %+v", got)
	}
}

func TestDeleteUser(t *testing.T) {
	db := testDB(t)

	user := &models.User{
		ID:          "rc-9",
		Platform:    models.PlatformAccelerate,
		Hostname:    "api.accelerate.example",
		AuthType:    models.AuthTypeAPIKey,
		AccessToken: "key",
	}
	if err := SaveUser(db, user); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	if err := DeleteUser(db, "rc-9", models.PlatformAccelerate); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	got, err := GetUser(db, "rc-9", models.PlatformAccelerate)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected user gone, got %+v", got)
	}
}
