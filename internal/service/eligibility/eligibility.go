// Package eligibility checks whether a donor may submit an offer.
package eligibility

import (
	"time"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/validator"
)

const (
	MinimumAge          = 18
	MinimumWeightKg     = 50
	MinimumIntervalDays = 56
)

type Checker struct {
	validator *validator.Validator
	now       func() time.Time
}

func NewChecker(v *validator.Validator) *Checker {
	return &Checker{validator: v, now: time.Now}
}

// WithClock overrides the clock used to compute "today".
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

func (c *Checker) today() model.Date {
	return model.DateOf(c.now().UTC())
}

// CheckDonorOffer returns a validation error listing every failing field, or nil.
func (c *Checker) CheckDonorOffer(req *model.CreateDonorOfferRequest) error {
	fields, err := c.validator.Fields(req)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if fields == nil {
		fields = make(map[string]string)
	}
	today := c.today()

	c.checkRequestedDate(fields, req.RequestedDate, today)

	switch {
	case req.DateOfBirth.IsZero():
		fields["dob"] = "Date of birth is required."
	case req.DateOfBirth.AddYears(MinimumAge).After(today):
		fields["dob"] = "You must be at least 18 years old to donate."
	}

	if !req.LastDonationDate.IsZero() && !req.RequestedDate.IsZero() {
		if req.RequestedDate.DaysSince(req.LastDonationDate) < MinimumIntervalDays {
			fields["requestedDate"] = "You must wait at least 56 days between donations."
		}
	}

	if req.AttachLocation && req.Location.IsEmpty() {
		fields["location"] = "Location is required when attaching your location."
	}

	if len(fields) > 0 {
		return apperrors.NewValidation(fields)
	}
	return nil
}

// CheckHospitalRequest validates a hospital's blood request.
func (c *Checker) CheckHospitalRequest(req *model.CreateHospitalRequest) error {
	fields, err := c.validator.Fields(req)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if fields == nil {
		fields = make(map[string]string)
	}
	c.checkRequestedDate(fields, req.RequestedDate, c.today())

	if len(fields) > 0 {
		return apperrors.NewValidation(fields)
	}
	return nil
}

func (c *Checker) checkRequestedDate(fields map[string]string, requested, today model.Date) {
	switch {
	case requested.IsZero():
		fields["requestedDate"] = "Please select a date."
	case requested.Before(today):
		fields["requestedDate"] = "Date cannot be in the past."
	}
}
