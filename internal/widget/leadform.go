package widget

import (
	"strings"
	"time"

	"agyntsynq/internal/entities"
)

// ConsentError is shown under the lead form when no channel is checked.
const ConsentError = "Please select at least one communication preference to continue."

// LeadForm is what the visitor typed into the lead capture form.
type LeadForm struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	OptInEmail bool
	OptInSMS   bool
	OptInPhone bool
}

func (f LeadForm) profile(now time.Time) entities.VisitorProfile {
	p := entities.VisitorProfile{
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		Email:       f.Email,
		Phone:       f.Phone,
		OptInEmail:  f.OptInEmail,
		OptInSMS:    f.OptInSMS,
		OptInPhone:  f.OptInPhone,
		SubmittedAt: now.UTC(),
	}
	p.Normalize()
	return p
}

// checkLead applies the form's rules: every identity field filled in,
// then at least one consent channel.
func checkLead(p entities.VisitorProfile) error {
	return p.Validate()
}

func personalWelcome(firstName, welcome string) string {
	return strings.TrimSpace("Hi " + firstName + "! " + welcome)
}
