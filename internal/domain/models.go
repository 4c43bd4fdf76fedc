package domain

import "time"

type User struct {
	ID        string
	Email     string
	Name      string
	Country   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserWithPassword struct {
	User
	PasswordHash string
}

// NewUser is the input for creating a credential record. Reset fields always start empty.
type NewUser struct {
	Email        string
	Name         string
	Country      string
	PasswordHash string
}

type Thumbnail struct {
	ID        string
	UserID    string
	VideoName string
	Version   string
	Image     string
	Paid      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type NewThumbnail struct {
	UserID    string
	VideoName string
	Version   string
	Image     string
	Paid      bool
}

// ThumbnailPatch carries the metadata fields an owner may change. Nil means unchanged.
type ThumbnailPatch struct {
	VideoName *string
	Version   *string
	Paid      *bool
}

func (p ThumbnailPatch) Empty() bool {
	return p.VideoName == nil && p.Version == nil && p.Paid == nil
}
