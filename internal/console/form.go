package console

import (
	"context"
	"strings"

	"meshlockr.org/internal/policy"
)

// Form captures one policy's editable fields before a create or update. The
// only blocking rule is that at least one country is selected; block times
// are free text split on commas with no further validation.
type Form struct {
	Countries      []string
	States         []string
	BlockTimes     string
	RequireTrusted bool
	CreatedBy      string
}

// SetInitial fills the form from an existing policy for edit mode.
func (f *Form) SetInitial(p policy.AccessPolicy) {
	f.Countries = append([]string(nil), p.AllowCountry...)
	f.States = append([]string(nil), p.AllowState...)
	f.BlockTimes = strings.Join(p.BlockTimeRanges, ", ")
	f.RequireTrusted = p.RequireTrusted
	f.CreatedBy = p.CreatedBy
}

// Reset returns the form to its empty default state.
func (f *Form) Reset() {
	*f = Form{}
}

// Payload validates the form and normalizes it into the store shape.
func (f *Form) Payload() (policy.Payload, error) {
	p := policy.Payload{
		AllowCountry:    append([]string(nil), f.Countries...),
		AllowState:      append([]string(nil), f.States...),
		BlockTimeRanges: policy.SplitTimeRanges(f.BlockTimes),
		RequireTrusted:  f.RequireTrusted,
		CreatedBy:       strings.TrimSpace(f.CreatedBy),
	}
	if err := p.Validate(); err != nil {
		return policy.Payload{}, err
	}
	return p, nil
}

// Submit hands the normalized payload to the controller: create when id is
// empty, full-replace update otherwise. On success the form resets so the
// caller can close it; on failure the entered values stay intact and the
// error is returned for in-place display.
func (f *Form) Submit(ctx context.Context, c *Controller, id string) error {
	payload, err := f.Payload()
	if err != nil {
		return err
	}
	if id == "" {
		_, err = c.Create(ctx, payload)
	} else {
		_, err = c.Update(ctx, id, payload)
	}
	if err != nil {
		return err
	}
	f.Reset()
	return nil
}
