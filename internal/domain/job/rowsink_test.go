package job

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/target/mmk-jobs/internal/domain/model"
)

func TestRowSink(t *testing.T) {
	sink := NewRowSink(2)

	assert.True(t, sink.Add(model.Row{"n": 1}))
	assert.False(t, sink.LimitReached())
	assert.True(t, sink.Add(model.Row{"n": 2}))
	assert.True(t, sink.Full())
	assert.False(t, sink.LimitReached(), "a full sink has not dropped anything yet")
	assert.False(t, sink.Add(model.Row{"n": 3}))
	assert.True(t, sink.LimitReached())

	rows := sink.Rows()
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, sink.Len())
	assert.Equal(t, 2, sink.Max())

	rows[0] = nil
	assert.NotNil(t, sink.Rows()[0])
}

func TestRowSink_DefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultMaxRows, NewRowSink(0).Max())
}
