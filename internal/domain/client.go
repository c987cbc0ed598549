package domain

import "time"

// Client is a chat participant identified by IP address.
type Client struct {
	ID        string
	IPAddress string
	Name      *string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	LastSeen  time.Time
}
