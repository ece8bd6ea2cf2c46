package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Admin struct {
	ID             uint   `gorm:"primarykey"`
	Username       string `gorm:"uniqueIndex"`
	HashedPassword string
	Email          string
	UpdatedAt      time.Time
}

func (a *Admin) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.HashedPassword), []byte(password)) == nil
}

func (a *Admin) SetPassword(password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.HashedPassword = string(hashed)
	return nil
}
