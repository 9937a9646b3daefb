package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveQuery(t *testing.T) {
	ok := testutil.ToFloat64(dbQueries.WithLabelValues("one", "ok"))
	bad := testutil.ToFloat64(dbQueries.WithLabelValues("one", "error"))

	ObserveQuery("one", time.Millisecond, nil)
	ObserveQuery("one", time.Millisecond, errors.New("boom"))
	ObserveQuery("one", time.Millisecond, nil)

	assert.Equal(t, ok+2, testutil.ToFloat64(dbQueries.WithLabelValues("one", "ok")))
	assert.Equal(t, bad+1, testutil.ToFloat64(dbQueries.WithLabelValues("one", "error")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(rateLimited)
	RecordRateLimited()
	assert.Equal(t, before+1, testutil.ToFloat64(rateLimited))

	before = testutil.ToFloat64(logins.WithLabelValues("failure"))
	RecordLogin(false)
	assert.Equal(t, before+1, testutil.ToFloat64(logins.WithLabelValues("failure")))

	before = testutil.ToFloat64(transitions.WithLabelValues("accepted"))
	RecordTransition("accepted")
	assert.Equal(t, before+1, testutil.ToFloat64(transitions.WithLabelValues("accepted")))
}

func TestRegisterDBTwice(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RegisterDB(db))
	assert.NoError(t, RegisterDB(db))
}
