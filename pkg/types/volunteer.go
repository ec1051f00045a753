package types

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Volunteer is the read-only slice of a volunteer record that background
// checks need. The volunteers table itself is owned by the people directory.
type Volunteer struct {
	ID        string     `db:"id" yaml:"id"`
	Email     string     `db:"email" yaml:"email"`
	FirstName string     `db:"first_name" yaml:"first_name"`
	LastName  string     `db:"last_name" yaml:"last_name"`
	BirthDate *time.Time `db:"birth_date" yaml:"birth_date"`
	Phone     *string    `db:"phone" yaml:"phone"`
	Address   *string    `db:"address" yaml:"address"`
	ZipCode   *string    `db:"zip_code" yaml:"zip_code"`
}

func (v *Volunteer) Candidate() CandidateProfile {
	return CandidateProfile{
		Email:     strings.TrimSpace(v.Email),
		FirstName: strings.TrimSpace(v.FirstName),
		LastName:  strings.TrimSpace(v.LastName),
		BirthDate: v.BirthDate,
		Phone:     v.Phone,
		Address:   v.Address,
		ZipCode:   v.ZipCode,
	}
}

// CandidateProfile is the volunteer as presented to a provider.
type CandidateProfile struct {
	Email     string
	FirstName string
	LastName  string
	BirthDate *time.Time
	Phone     *string
	Address   *string
	ZipCode   *string
}

func (c CandidateProfile) Validate() error {
	var missing []string
	if c.FirstName == "" {
		missing = append(missing, "first name")
	}
	if c.LastName == "" {
		missing = append(missing, "last name")
	}
	if c.BirthDate == nil || c.BirthDate.IsZero() {
		missing = append(missing, "birth date")
	}
	if c.Email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidCandidateData, strings.Join(missing, ", "))
	}

	if _, err := mail.ParseAddress(c.Email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrInvalidCandidateData, c.Email)
	}

	return nil
}

// Contact is where notifications about a volunteer's checks are sent.
type Contact struct {
	VolunteerID string `json:"volunteerId"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Name        string `json:"name"`
}

func (v *Volunteer) Contact() Contact {
	c := Contact{
		VolunteerID: v.ID,
		Email:       v.Email,
		Name:        strings.TrimSpace(v.FirstName + " " + v.LastName),
	}
	if v.Phone != nil {
		c.Phone = *v.Phone
	}
	return c
}
