package models

import "time"

// Vehicle is an EV registered on a user profile. Battery capacity feeds
// charging-session time estimates.
type Vehicle struct {
	Make               string  `json:"make"`
	Model              string  `json:"model"`
	Year               int     `json:"year"`
	VehicleType        string  `json:"vehicle_type,omitempty"`
	LicensePlate       string  `json:"license_plate"`
	BatteryCapacityKWh float64 `json:"battery_capacity_kwh,omitempty"`
	RangeKM            float64 `json:"range_km,omitempty"`
	IsDefault          bool    `json:"is_default"`
}

// User is an account holder.
type User struct {
	ID              int64     `db:"id" json:"id"`
	UserName        string    `db:"user_name" json:"user_name"`
	Email           string    `db:"email" json:"email"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	PhoneNumber     string    `db:"phone_number" json:"phone_number,omitempty"`
	ProfileImageURL string    `db:"profile_image_url" json:"profile_image_url"`
	Role            string    `db:"role" json:"role"`
	Vehicles        []Vehicle `db:"vehicles" json:"vehicles,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultVehicle returns the user's default vehicle, or the first one.
func (u *User) DefaultVehicle() *Vehicle {
	for i := range u.Vehicles {
		if u.Vehicles[i].IsDefault {
			return &u.Vehicles[i]
		}
	}
	if len(u.Vehicles) > 0 {
		return &u.Vehicles[0]
	}
	return nil
}
