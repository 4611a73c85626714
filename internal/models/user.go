package models

import "time"

// User is a bank customer identified by mobile number. The OTP fields hold
// the code most recently sent to the user and are cleared after login.
type User struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	Name             string     `gorm:"size:128;not null" json:"name"`
	MobileNo         string     `gorm:"size:16;not null;uniqueIndex" json:"mobileNo"`
	MobileOTP        string     `gorm:"size:8" json:"-"`
	MobileOTPExpires *time.Time `json:"-"`
	Active           bool       `gorm:"default:true" json:"active"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}
