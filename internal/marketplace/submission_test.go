package marketplace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionLifecycle(t *testing.T) {
	subs := NewSubmissions(fixedClock)
	assert.Equal(t, StateIdle, subs.State(FormCreate))

	require.NoError(t, subs.Begin(FormCreate))
	assert.Equal(t, StateSubmitting, subs.State(FormCreate))
	assert.ErrorIs(t, subs.Begin(FormCreate), ErrSubmissionInProgress)

	// Other forms are independent.
	require.NoError(t, subs.Begin(FormBuy))

	subs.Finish(FormCreate, nil)
	subs.Finish(FormBuy, errors.New("Contract is not available for purchase"))
	assert.Equal(t, StateIdle, subs.State(FormCreate))
	assert.Equal(t, StateIdle, subs.State(FormBuy))

	byForm := map[Form]Submission{}
	for _, s := range subs.Snapshot() {
		byForm[s.Form] = s
	}
	require.Len(t, byForm, 5)
	require.NotNil(t, byForm[FormCreate].Last)
	assert.Equal(t, StateSuccess, byForm[FormCreate].Last.State)
	assert.Equal(t, fixedNow, byForm[FormCreate].Last.SettledAt)
	require.NotNil(t, byForm[FormBuy].Last)
	assert.Equal(t, StateFailed, byForm[FormBuy].Last.State)
	assert.Equal(t, "Contract is not available for purchase", byForm[FormBuy].Last.Error)
	assert.Nil(t, byForm[FormEdit].Last)
}

func TestFinishWithoutBeginIsIgnored(t *testing.T) {
	subs := NewSubmissions(nil)
	subs.Finish(FormDelete, nil)

	assert.Equal(t, StateIdle, subs.State(FormDelete))
	for _, s := range subs.Snapshot() {
		assert.Nil(t, s.Last, string(s.Form))
	}
}
