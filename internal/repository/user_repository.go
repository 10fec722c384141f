package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/festra/festra-api/internal/models"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

type UserRepository interface {
	CreateUser(email, password, firstName, lastName string, roles []models.UserRole) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
	GetUserByID(userID string) (models.User, error)
	SetPushToken(ctx context.Context, userID, token, group string) error
	ClearPushToken(ctx context.Context, userID string) error
	// ClearPushTokenByValue nulls every token matching value. It is a single
	// atomic statement so concurrent invocations racing on the same token
	// cannot leave a half-cleared row.
	ClearPushTokenByValue(ctx context.Context, value string) error
	ListPushTokens(ctx context.Context) ([]models.DeviceToken, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (u *userRepository) CreateUser(email string, password string, firstName string, lastName string, roles []models.UserRole) (models.User, error) {
	if len(roles) == 0 {
		roles = []models.UserRole{models.RoleAttendee}
	}
	if !models.IsValidRoleList(roles) {
		return models.User{}, errors.New("invalid roles")
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))

	email = strings.TrimSpace(strings.ToLower(email))
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if email == "" {
		return models.User{}, errors.New("email is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: string(hash),
		IsActive:     true,
		Roles:        normalized,
		PushGroup:    models.DefaultCategory,
	}

	query := `
		INSERT INTO app.users (email, first_name, last_name, password_hash, is_active, roles)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err = u.db.QueryRow(query, user.Email, user.FirstName, user.LastName, user.PasswordHash, user.IsActive, pq.Array(toStringSlice(user.Roles))).Scan(&user.ID)
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (u *userRepository) AuthenticateUser(email string, password string) (models.User, error) {
	user, err := u.getByEmail(strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, errors.New("invalid credentials")
		}
		return models.User{}, err
	}

	if !user.IsActive {
		return models.User{}, errors.New("user is inactive")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, errors.New("invalid credentials")
	}

	return user, nil
}

func (u *userRepository) GetUserByID(userID string) (models.User, error) {
	const query = `
		SELECT id, email, first_name, last_name, password_hash, is_active, roles, push_token, push_group
		FROM app.users
		WHERE id = $1 AND deleted_at IS NULL`
	return u.scanUser(u.db.QueryRow(query, userID))
}

func (u *userRepository) getByEmail(email string) (models.User, error) {
	const query = `
		SELECT id, email, first_name, last_name, password_hash, is_active, roles, push_token, push_group
		FROM app.users
		WHERE email = $1 AND deleted_at IS NULL`
	return u.scanUser(u.db.QueryRow(query, email))
}

func (u *userRepository) scanUser(row *sql.Row) (models.User, error) {
	var (
		user      models.User
		roles     pq.StringArray
		pushToken sql.NullString
	)

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.IsActive,
		&roles,
		&pushToken,
		&user.PushGroup,
	)
	if err != nil {
		return models.User{}, err
	}

	user.Roles = models.EnsureDefaultRole(models.NormalizeRoles(toUserRoleSlice(roles)))
	if pushToken.Valid {
		val := pushToken.String
		user.PushToken = &val
	}
	return user, nil
}

func (u *userRepository) SetPushToken(ctx context.Context, userID, token, group string) error {
	group = strings.TrimSpace(group)
	if group == "" {
		group = models.DefaultCategory
	}
	query := `
		UPDATE app.users
		SET push_token = $2, push_group = $3
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := u.db.ExecContext(ctx, query, userID, token, group)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (u *userRepository) ClearPushToken(ctx context.Context, userID string) error {
	query := `UPDATE app.users SET push_token = NULL WHERE id = $1`
	_, err := u.db.ExecContext(ctx, query, userID)
	return err
}

func (u *userRepository) ClearPushTokenByValue(ctx context.Context, value string) error {
	query := `UPDATE app.users SET push_token = NULL WHERE push_token = $1`
	_, err := u.db.ExecContext(ctx, query, value)
	return err
}

func (u *userRepository) ListPushTokens(ctx context.Context) ([]models.DeviceToken, error) {
	const query = `
		SELECT id, push_token, push_group
		FROM app.users
		WHERE push_token IS NOT NULL AND is_active = TRUE AND deleted_at IS NULL
	`
	rows, err := u.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.DeviceToken
	for rows.Next() {
		var token models.DeviceToken
		if err := rows.Scan(&token.UserID, &token.Token, &token.Group); err != nil {
			return nil, err
		}
		if token.Group == "" {
			token.Group = models.DefaultCategory
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func toStringSlice(roles []models.UserRole) []string {
	out := make([]string, len(roles))
	for i, role := range roles {
		out[i] = string(role)
	}
	return out
}

func toUserRoleSlice(values pq.StringArray) []models.UserRole {
	out := make([]models.UserRole, len(values))
	for i, v := range values {
		out[i] = models.UserRole(v)
	}
	return out
}
