package opclass

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsUnknownClass(t *testing.T) {
	_, err := Parse("read-arbitrage-state")
	assert.Error(t, err)

	c, err := Parse("read-balance")
	require.NoError(t, err)
	assert.Equal(t, ReadBalance, c)
}

func TestSubmitClassNeverCacheable(t *testing.T) {
	p := DefaultPolicies()

	for _, method := range []string{"sendTransaction", "simulateTransaction", "getSignatureStatuses"} {
		c, pol, err := p.ForMethod(method)
		require.NoError(t, err, method)
		assert.Equal(t, SubmitTransaction, c, method)
		assert.False(t, pol.Cacheable, method)
		assert.Zero(t, pol.TTL, method)
		assert.Equal(t, 1, pol.MaxRetries, method)
	}

	err := p.WithTTL(SubmitTransaction, time.Minute)
	assert.Error(t, err, "submit class must reject a cache TTL")
}

func TestUnclassifiedMethodFailsFast(t *testing.T) {
	p := DefaultPolicies()

	_, _, err := p.ForMethod("getRecentPerformanceSamples")
	assert.Error(t, err)

	err = p.ValidateMethods([]string{"getBalance", "getFoo"})
	assert.Error(t, err)

	err = p.ValidateMethods([]string{"getBalance", "getSlot", "sendTransaction"})
	assert.NoError(t, err)
}

func TestTTLOverridePerClass(t *testing.T) {
	p := DefaultPolicies()
	require.NoError(t, p.WithTTL(ReadBalance, 2*time.Second))

	_, pol, err := p.ForMethod("getBalance")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, pol.TTL)
	assert.True(t, pol.Cacheable)
}

func TestHistoricalTransactionLookupKeepsLongTTL(t *testing.T) {
	p := DefaultPolicies()

	c, pol, err := p.ForMethod("getTransaction")
	require.NoError(t, err)
	assert.Equal(t, ReadAccount, c)
	assert.True(t, pol.TTL >= time.Hour, "finalized transactions are immutable and should cache for hours")

	// The override must not leak into the rest of the class.
	_, accPol, err := p.ForMethod("getAccountInfo")
	require.NoError(t, err)
	assert.Less(t, accPol.TTL, time.Hour)
}

func TestRetryOverrideSkipsSubmitClass(t *testing.T) {
	p := DefaultPolicies()
	require.NoError(t, p.WithRetries(5))

	_, readPol, err := p.ForMethod("getBalance")
	require.NoError(t, err)
	assert.Equal(t, 5, readPol.MaxRetries)

	_, submitPol, err := p.ForMethod("sendTransaction")
	require.NoError(t, err)
	assert.Equal(t, 1, submitPol.MaxRetries)
}
