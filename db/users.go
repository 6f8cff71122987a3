// ABOUTME: User credential row operations
// ABOUTME: Upsert on connect, lookup per request, delete on logout
package db

import (
	"database/sql"
	"time"

	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

// SaveUser inserts the credential row, or replaces the stored tokens if the
// user already connected this platform before.
func SaveUser(db *sql.DB, user *models.User) error {
	now := time.Now()
	user.UpdatedAt = now
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	_, err := db.Exec(`
		INSERT INTO users (id, platform, name, hostname, auth_type, access_token, refresh_token, token_expiry, timezone_offset, rc_user_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, platform) DO UPDATE SET
			name = excluded.name,
			hostname = excluded.hostname,
			auth_type = excluded.auth_type,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry,
			timezone_offset = excluded.timezone_offset,
			rc_user_number = excluded.rc_user_number,
			updated_at = excluded.updated_at
	`, user.ID, string(user.Platform), user.Name, user.Hostname, string(user.AuthType),
		user.AccessToken, user.RefreshToken, user.TokenExpiry, user.TimezoneOffset,
		user.RCUserNumber, user.CreatedAt, user.UpdatedAt)

	return err
}

// GetUser returns nil with no error when the row does not exist.
func GetUser(db *sql.DB, id string, platform models.Platform) (*models.User, error) {
	user := &models.User{}
	var name, refreshToken, rcUserNumber sql.NullString
	var tokenExpiry sql.NullTime
	var platformStr, authTypeStr string

	err := db.QueryRow(`
		SELECT id, platform, name, hostname, auth_type, access_token, refresh_token, token_expiry, timezone_offset, rc_user_number, created_at, updated_at
		FROM users WHERE id = ? AND platform = ?
	`, id, string(platform)).Scan(
		&user.ID,
		&platformStr,
		&name,
		&user.Hostname,
		&authTypeStr,
		&user.AccessToken,
		&refreshToken,
		&tokenExpiry,
		&user.TimezoneOffset,
		&rcUserNumber,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user.Platform = models.Platform(platformStr)
	user.AuthType = models.AuthType(authTypeStr)
	user.Name = name.String
	user.RefreshToken = refreshToken.String
	user.RCUserNumber = rcUserNumber.String
	if tokenExpiry.Valid {
		t := tokenExpiry.Time
		user.TokenExpiry = &t
	}

	return user, nil
}

// UpdateUserTokens persists a refreshed access token without touching the
// rest of the row.
func UpdateUserTokens(db *sql.DB, id string, platform models.Platform, accessToken, refreshToken string, expiry *time.Time) error {
	_, err := db.Exec(`
		UPDATE users
		SET access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = ?
		WHERE id = ? AND platform = ?
	`, accessToken, refreshToken, expiry, time.Now(), id, string(platform))

	return err
}

func DeleteUser(db *sql.DB, id string, platform models.Platform) error {
	_, err := db.Exec(`DELETE FROM users WHERE id = ? AND platform = ?`, id, string(platform))
	return err
}
