package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// StaticUser is a configured identity for the static directory.
type StaticUser struct {
	Email        string `mapstructure:"email"`
	Name         string `mapstructure:"name"`
	PasswordHash string `mapstructure:"password_hash"`
}

// StaticDirectory serves a fixed set of bcrypt-hashed identities.
type StaticDirectory struct {
	users map[string]StaticUser
}

// NewStaticDirectory validates and indexes users by lowercase email.
func NewStaticDirectory(users []StaticUser) (*StaticDirectory, error) {
	index := make(map[string]StaticUser, len(users))
	for _, u := range users {
		key := strings.ToLower(strings.TrimSpace(u.Email))
		if key == "" {
			return nil, errors.New("static user without email")
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("static user %s: invalid password hash: %w", key, err)
		}
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("duplicate static user %s", key)
		}
		u.Email = key
		index[key] = u
	}
	return &StaticDirectory{users: index}, nil
}

func (d *StaticDirectory) Lookup(_ context.Context, email string) (*Subject, error) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, nil
	}
	name := u.Name
	if name == "" {
		name = u.Email
	}
	return &Subject{DN: "static:" + u.Email, CN: name, Email: u.Email}, nil
}

func (d *StaticDirectory) VerifyCredentials(_ context.Context, subject Subject, password string) (bool, error) {
	u, ok := d.users[strings.ToLower(subject.Email)]
	if !ok || password == "" {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("compare password hash: %w", err)
	}
	return true, nil
}

func (d *StaticDirectory) Ping(context.Context) error { return nil }
