package identity

import "time"

// User is the stored credential record. It never leaves this package's
// callers as-is; resolvers get a Profile.
type User struct {
	ID            string
	Email         string
	FirstName     string
	LastName      string
	PasswordHash  string
	LoginAttempts int
	LockedUntil   *time.Time
	MFAEnabled    bool
	MFASecret     string
	CreatedAt     time.Time
}

// Profile is the sanitized view of a User: no password hash, no MFA secret.
type Profile struct {
	ID         string
	Email      string
	FirstName  string
	LastName   string
	MFAEnabled bool
}

// Profile strips credential material from u.
func (u User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		MFAEnabled: u.MFAEnabled,
	}
}

// LockedAt reports whether the account lock is still active at now.
func (u User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// RegisterInput carries the registration fields.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Changes is a partial update applied to one record in a single store call.
// Nil pointers leave a field untouched; the Clear flags null a field out and
// win over a value set for the same field.
type Changes struct {
	LoginAttempts  *int
	LockedUntil    *time.Time
	ClearLock      bool
	MFAEnabled     *bool
	MFASecret      *string
	ClearMFASecret bool
}

// Empty reports whether c changes nothing.
func (c Changes) Empty() bool {
	return c.LoginAttempts == nil && c.LockedUntil == nil && !c.ClearLock &&
		c.MFAEnabled == nil && c.MFASecret == nil && !c.ClearMFASecret
}

// Apply writes c onto u. Stores without native partial updates use it.
func (c Changes) Apply(u *User) {
	if c.LoginAttempts != nil {
		u.LoginAttempts = *c.LoginAttempts
	}
	if c.LockedUntil != nil {
		t := *c.LockedUntil
		u.LockedUntil = &t
	}
	if c.ClearLock {
		u.LockedUntil = nil
	}
	if c.MFAEnabled != nil {
		u.MFAEnabled = *c.MFAEnabled
	}
	if c.MFASecret != nil {
		u.MFASecret = *c.MFASecret
	}
	if c.ClearMFASecret {
		u.MFASecret = ""
	}
}
