package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
)

// ErrInvalidCredentials возвращается при неверном логине или пароле оператора.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticate проверяет логин и пароль оператора.
func (s *Service) Authenticate(_ context.Context, login, password string) error {
	if len(s.operatorHash) == 0 || login != s.operatorLogin {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare(hashPassword(login, password), s.operatorHash) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// AuthEnabled сообщает, задан ли пароль оператора.
func (s *Service) AuthEnabled() bool {
	return len(s.operatorHash) > 0
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}
