package database

import "time"

type User struct {
	Id           int
	Name         string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
}

type Message struct {
	Id        int
	FromId    int
	ToId      int
	Content   string
	Delivered bool
	Read      bool
	CreatedAt time.Time
}

type CreateAccountParams struct {
	Name         string
	EmailAddress string
	PasswordHash string
}
