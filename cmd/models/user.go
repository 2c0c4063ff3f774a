package models

import (
	"time"

	"gorm.io/gorm"
)

// GeoPoint is a GeoJSON point. Coordinates are always [lng, lat].
type GeoPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// NewGeoPoint builds a point from a lat/lng pair, swapping into GeoJSON order.
func NewGeoPoint(lat, lng float64) *GeoPoint {
	return &GeoPoint{
		Type:        "Point",
		Coordinates: []float64{lng, lat},
	}
}

func (p *GeoPoint) Lat() float64 {
	if p == nil || len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[1]
}

func (p *GeoPoint) Lng() float64 {
	if p == nil || len(p.Coordinates) < 1 {
		return 0
	}
	return p.Coordinates[0]
}

type User struct {
	gorm.Model
	Name                  string    `gorm:"column:name;size:255;not null" json:"name"`
	Email                 string    `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash          string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	EmailVerified         bool      `gorm:"column:email_verified;default:false" json:"email_verified"`
	EmailVerificationCode string    `gorm:"column:email_verification_code;size:6" json:"-"`
	VerificationExpiry    time.Time `gorm:"column:verification_expiry" json:"-"`
	Location              *GeoPoint `gorm:"column:location;type:jsonb;serializer:json" json:"location,omitempty"`
	Avatar                []byte    `gorm:"column:avatar;type:bytea" json:"-"`
	AvatarVersion         string    `gorm:"column:avatar_version;size:64" json:"-"`
}
