//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType_Valid(t *testing.T) {
	assert.True(t, JobTypeSpotlist.Valid())
	assert.True(t, JobTypeTopTen.Valid())
	assert.False(t, JobType("unknown").Valid())
}

func TestJobType_UnmarshalText(t *testing.T) {
	var jt JobType
	require.NoError(t, jt.UnmarshalText([]byte(" TOP_TEN ")))
	assert.Equal(t, JobTypeTopTen, jt)

	err := jt.UnmarshalText([]byte("csv_import"))
	require.ErrorIs(t, err, ErrInvalidJobType)
}

func TestJobStatus_Predicates(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusPendingRetry.IsTerminal())
	assert.True(t, JobStatusQueued.IsWaiting())
	assert.True(t, JobStatusPending.IsWaiting())
	assert.False(t, JobStatusRunning.IsWaiting())
	assert.False(t, JobStatus("paused").Valid())
}

func TestCreateJobRequest_Validate(t *testing.T) {
	valid := json.RawMessage(`{"company_name":"Acme","date_from":"2024-01-01","date_to":"2024-01-31"}`)

	tests := []struct {
		name    string
		req     CreateJobRequest
		wantErr string
	}{
		{
			name: "defaults to spotlist",
			req:  CreateJobRequest{SessionID: "s1", Name: "January", Parameters: valid},
		},
		{
			name:    "missing session",
			req:     CreateJobRequest{Name: "January", Parameters: valid},
			wantErr: "session id is required",
		},
		{
			name:    "missing name",
			req:     CreateJobRequest{SessionID: "s1", Parameters: valid},
			wantErr: "job name is required",
		},
		{
			name:    "unknown type",
			req:     CreateJobRequest{SessionID: "s1", Name: "x", Type: "csv", Parameters: valid},
			wantErr: "invalid job type",
		},
		{
			name:    "missing parameters",
			req:     CreateJobRequest{SessionID: "s1", Name: "x"},
			wantErr: "parameters are required",
		},
		{
			name: "reversed window",
			req: CreateJobRequest{SessionID: "s1", Name: "x", Parameters: json.RawMessage(
				`{"date_from":"2024-02-01","date_to":"2024-01-01"}`)},
			wantErr: "date_to must not be before date_from",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := req.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, JobTypeSpotlist, req.Type)
		})
	}
}

func TestDecodeParameters(t *testing.T) {
	t.Run("top ten with default limit", func(t *testing.T) {
		p, err := DecodeParameters(JobTypeTopTen, json.RawMessage(
			`{"company_name":"Acme","date_from":"2024-01-01","date_to":"2024-01-02","channel_filter":"RTL, Sat.1 ,"}`))
		require.NoError(t, err)
		tt, ok := p.(TopTenParams)
		require.True(t, ok)
		assert.Equal(t, JobTypeTopTen, tt.JobType())
		assert.Equal(t, DefaultTopTenLimit, tt.EffectiveLimit())
		assert.Equal(t, []string{"rtl", "sat.1"}, tt.ChannelTerms())
	})

	t.Run("spotlist ignores unknown fields", func(t *testing.T) {
		p, err := DecodeParameters(JobTypeSpotlist, json.RawMessage(
			`{"date_from":"2024-01-01","date_to":"2024-01-01","weekdays":[1,2]}`))
		require.NoError(t, err)
		assert.IsType(t, SpotlistParams{}, p)
		assert.Nil(t, p.(SpotlistParams).ChannelTerms())
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := DecodeParameters(JobTypeSpotlist, json.RawMessage(`{`))
		require.Error(t, err)
	})

	t.Run("limit out of range", func(t *testing.T) {
		_, err := DecodeParameters(JobTypeTopTen, json.RawMessage(
			`{"date_from":"2024-01-01","date_to":"2024-01-01","limit":500}`))
		require.Error(t, err)
	})
}

func TestCapResult(t *testing.T) {
	t.Run("small payload kept", func(t *testing.T) {
		res, err := CapResult(WorkResult{
			Rows:     []Row{{"Channel": "RTL"}},
			Metadata: map[string]any{MetaTotalRows: 1},
		}, 1024)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"Channel":"RTL"}]`, string(res.Data))
		assert.JSONEq(t, `{"total_rows":1}`, string(res.Metadata))
	})

	t.Run("nil rows serialize as empty list", func(t *testing.T) {
		res, err := CapResult(WorkResult{}, 0)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(res.Data))
	})

	t.Run("oversized payload dropped", func(t *testing.T) {
		meta := map[string]any{MetaTotalRows: 1}
		big := strings.Repeat("x", 2<<20)
		res, err := CapResult(WorkResult{Rows: []Row{{"blob": big}}, Metadata: meta}, DefaultMaxResultBytes)
		require.NoError(t, err)
		assert.Nil(t, res.Data)

		var got map[string]any
		require.NoError(t, json.Unmarshal(res.Metadata, &got))
		assert.Equal(t, true, got[MetaDataTooLarge])
		assert.InDelta(t, 2.0, got[MetaDataSizeMB], 0.01)
		assert.InDelta(t, float64(len(big)+len(`[{"blob":""}]`)), got[MetaDataSizeBytes], 0)
		assert.NotContains(t, meta, MetaDataTooLarge, "input metadata is not modified")
	})
}
