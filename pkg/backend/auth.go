package backend

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
)

// ErrInvalidCredentials covers both an unknown username and a wrong
// password, so login failures don't leak which accounts exist.
var ErrInvalidCredentials = errors.New("ongeldige gebruikersnaam of wachtwoord")

func (b *backend) Login(username, password string) (model.LoginResponse, error) {
	var user db.User
	sql := b.db.Where("username = ?", username).Limit(1).Find(&user)
	if sql.Error != nil {
		return model.LoginResponse{}, sql.Error
	}
	if user.ID == 0 {
		return model.LoginResponse{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.LoginResponse{}, ErrInvalidCredentials
	}

	session := db.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(time.Duration(b.sessionTTLSeconds) * time.Second),
	}
	if err := b.db.Create(&session).Error; err != nil {
		return model.LoginResponse{}, err
	}

	return model.LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Username:  user.Username,
		Staff:     user.Staff,
	}, nil
}

func (b *backend) Logout(token string) error {
	return b.db.Where("token = ?", token).Delete(&db.Session{}).Error
}

// VerifySession resolves a token to its actor. An unknown or expired
// token yields the anonymous actor, not an error.
func (b *backend) VerifySession(token string) (model.Actor, error) {
	if token == "" {
		return model.Anonymous, nil
	}

	var session db.Session
	sql := b.db.Preload("User").
		Where("token = ? AND expires_at > ?", token, time.Now()).
		Limit(1).Find(&session)
	if sql.Error != nil {
		return model.Anonymous, sql.Error
	}
	if session.ID == 0 || session.User == nil {
		return model.Anonymous, nil
	}

	return model.Actor{Username: session.User.Username, Staff: session.User.Staff}, nil
}

func (b *backend) CreateUser(username, password string, staff bool) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := db.User{
		Username:     username,
		PasswordHash: string(hash),
		Staff:        staff,
	}
	if err := b.db.Create(&user).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return model.ConstraintViolation{Constraint: "unique_username"}
		}
		return err
	}
	return nil
}
