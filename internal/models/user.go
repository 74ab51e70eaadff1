package models

import "time"

// User is an application user mapped from a Discord profile. UserID is the
// stable subject identifier (the Discord snowflake in string form); every
// issued token's `sub` claim refers to it.
type User struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	UserID     string    `bson:"userId" json:"userId"`
	Username   string    `bson:"username" json:"username"`
	GlobalName string    `bson:"globalName,omitempty" json:"globalName,omitempty"`
	AvatarHash string    `bson:"avatarHash,omitempty" json:"avatarHash,omitempty"`
	Roles      []string  `bson:"roles,omitempty" json:"roles,omitempty"`
	IsAdmin    bool      `bson:"isAdmin" json:"isAdmin"`
	LastLogin  time.Time `bson:"lastLogin" json:"lastLogin"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updatedAt"`
}
