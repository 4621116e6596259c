package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/semillerodigital/classroomplus/internal/model"
)

// SetRolePreference upserts the dashboard role a user last selected.
func (s *Store) SetRolePreference(userID string, role model.Role) error {
	_, err := s.db.Exec(
		`INSERT INTO role_preferences (user_id, role, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at`,
		userID, string(role), time.Now().UTC(),
	)
	return err
}

// GetRolePreference returns the stored role for a user.
// Returns an empty role and nil error if none was stored.
func (s *Store) GetRolePreference(userID string) (model.Role, error) {
	var value string
	err := s.db.QueryRow(`SELECT role FROM role_preferences WHERE user_id = ?`, userID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	role, _ := model.ParseRole(value)
	return role, nil
}

// DeleteRolePreference forgets a user's role.
func (s *Store) DeleteRolePreference(userID string) error {
	_, err := s.db.Exec(`DELETE FROM role_preferences WHERE user_id = ?`, userID)
	return err
}
