package domain

import "time" // Timestamps

// User Model
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`                         // Primary key
	Username  string    `gorm:"size:80;uniqueIndex;not null" json:"username"` // Unique username
	Password  string    `gorm:"size:200;not null" json:"-"`                   // Hashed password
	Coins     int       `gorm:"not null;default:0" json:"coins"`            // Coin balance, may dip below zero until the next sweep
	ServerID  *uint     `gorm:"index" json:"server_id"`                       // Occupied server, nil when none
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`             // Registration time
}

// HasServer reports whether the user currently occupies a server
func (u *User) HasServer() bool {
	return u.ServerID != nil
}
