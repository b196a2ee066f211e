// Package testutil provides testing utilities and helpers for the mmk-jobs orchestrator.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/target/mmk-jobs/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req    *model.CreateJobRequest
	params model.CollectionParams
	limit  int
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			SessionID: "session-test",
			Name:      "test job",
			Type:      model.JobTypeSpotlist,
		},
		params: model.CollectionParams{
			CompanyName: "Acme",
			DateFrom:    "2024-01-01",
			DateTo:      "2024-01-07",
		},
	}
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(jobType model.JobType) *JobRequestBuilder {
	b.req.Type = jobType
	return b
}

// WithSessionID sets the owning session.
func (b *JobRequestBuilder) WithSessionID(sessionID string) *JobRequestBuilder {
	b.req.SessionID = sessionID
	return b
}

// WithName sets the job name.
func (b *JobRequestBuilder) WithName(name string) *JobRequestBuilder {
	b.req.Name = name
	return b
}

// WithCompany sets the company filter.
func (b *JobRequestBuilder) WithCompany(company string) *JobRequestBuilder {
	b.params.CompanyName = company
	return b
}

// WithChannelFilter sets the comma-separated channel filter.
func (b *JobRequestBuilder) WithChannelFilter(filter string) *JobRequestBuilder {
	b.params.ChannelFilter = filter
	return b
}

// WithWindow sets the collection date window.
func (b *JobRequestBuilder) WithWindow(from, to string) *JobRequestBuilder {
	b.params.DateFrom = from
	b.params.DateTo = to
	return b
}

// WithLimit sets the ranking size for top_ten jobs.
func (b *JobRequestBuilder) WithLimit(limit int) *JobRequestBuilder {
	b.limit = limit
	return b
}

// WithRawParameters overrides the encoded parameters entirely.
func (b *JobRequestBuilder) WithRawParameters(raw string) *JobRequestBuilder {
	b.req.Parameters = json.RawMessage(raw)
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	req := *b.req
	if req.Parameters != nil {
		return &req
	}

	var params model.Parameters = model.SpotlistParams{CollectionParams: b.params}
	if req.Type == model.JobTypeTopTen {
		params = model.TopTenParams{CollectionParams: b.params, Limit: b.limit}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		panic(fmt.Sprintf("marshal test parameters: %v", err))
	}
	req.Parameters = raw
	return &req
}

// SpotlistJobRequest creates a spotlist job request with default values.
func SpotlistJobRequest() *model.CreateJobRequest {
	return NewJobRequest().Build()
}

// TopTenJobRequest creates a top_ten job request with default values.
func TopTenJobRequest() *model.CreateJobRequest {
	return NewJobRequest().WithType(model.JobTypeTopTen).Build()
}
