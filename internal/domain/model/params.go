package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format accepted in job parameters.
const DateLayout = "2006-01-02"

// DefaultTopTenLimit is used when a top_ten job does not specify a limit.
const DefaultTopTenLimit = 10

// Parameters is the typed, decoded form of a job's parameters payload.
// Each JobType has exactly one concrete implementation.
type Parameters interface {
	JobType() JobType
	Validate() error
}

// CollectionParams selects which upstream rows a collection job gathers.
type CollectionParams struct {
	CompanyName   string `json:"company_name"`
	DateFrom      string `json:"date_from"`
	DateTo        string `json:"date_to"`
	ChannelFilter string `json:"channel_filter,omitempty"`
}

// Validate checks the date window.
func (p CollectionParams) Validate() error {
	if p.DateFrom == "" || p.DateTo == "" {
		return errors.New("date_from and date_to are required")
	}
	from, err := time.Parse(DateLayout, p.DateFrom)
	if err != nil {
		return fmt.Errorf("invalid date_from: %w", err)
	}
	to, err := time.Parse(DateLayout, p.DateTo)
	if err != nil {
		return fmt.Errorf("invalid date_to: %w", err)
	}
	if to.Before(from) {
		return errors.New("date_to must not be before date_from")
	}
	return nil
}

// ChannelTerms returns the lower-cased, comma-separated channel filter terms.
func (p CollectionParams) ChannelTerms() []string {
	if strings.TrimSpace(p.ChannelFilter) == "" {
		return nil
	}
	parts := strings.Split(p.ChannelFilter, ",")
	terms := make([]string, 0, len(parts))
	for _, part := range parts {
		if term := strings.ToLower(strings.TrimSpace(part)); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

// SpotlistParams are the parameters of a spotlist job.
type SpotlistParams struct {
	CollectionParams
}

// JobType implements Parameters.
func (SpotlistParams) JobType() JobType { return JobTypeSpotlist }

// TopTenParams are the parameters of a top_ten job.
type TopTenParams struct {
	CollectionParams
	Limit int `json:"limit,omitempty"`
}

// JobType implements Parameters.
func (TopTenParams) JobType() JobType { return JobTypeTopTen }

// Validate checks the collection window and the ranking size.
func (p TopTenParams) Validate() error {
	if err := p.CollectionParams.Validate(); err != nil {
		return err
	}
	if p.Limit < 0 || p.Limit > 100 {
		return errors.New("limit must be between 0 and 100")
	}
	return nil
}

// EffectiveLimit returns Limit or the default when unset.
func (p TopTenParams) EffectiveLimit() int {
	if p.Limit <= 0 {
		return DefaultTopTenLimit
	}
	return p.Limit
}

// DecodeParameters decodes a raw parameters payload into the concrete type for jobType.
func DecodeParameters(jobType JobType, raw json.RawMessage) (Parameters, error) {
	if len(raw) == 0 {
		return nil, errors.New("parameters are required")
	}

	var params Parameters
	switch jobType {
	case JobTypeSpotlist:
		var p SpotlistParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode spotlist parameters: %w", err)
		}
		params = p
	case JobTypeTopTen:
		var p TopTenParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode top_ten parameters: %w", err)
		}
		params = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobType, jobType)
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s parameters: %w", jobType, err)
	}
	return params, nil
}
