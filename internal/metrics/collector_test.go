package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpExtractorRun, 100*time.Millisecond)
	c.RecordTiming(OpExtractorRun, 300*time.Millisecond)
	c.RecordTiming(OpLockAcquire, 5*time.Millisecond)

	snap := c.Snapshot()

	require.NotNil(t, snap.ExtractorRun)
	assert.Equal(t, int64(2), snap.ExtractorRun.Count)
	assert.Equal(t, int64(400), snap.ExtractorRun.TotalTimeMs)
	assert.Equal(t, float64(200), snap.ExtractorRun.AvgTimeMs)
	assert.Equal(t, int64(100), snap.ExtractorRun.MinTimeMs)
	assert.Equal(t, int64(300), snap.ExtractorRun.MaxTimeMs)

	require.NotNil(t, snap.LockAcquire)
	assert.Equal(t, int64(1), snap.LockAcquire.Count)

	assert.Nil(t, snap.GenerationCycle, "unrecorded operations snapshot as nil")
	assert.GreaterOrEqual(t, snap.UptimeSeconds, float64(0))
}

func TestRecordTiming_Concurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordTiming(OpGenerationCycle, time.Millisecond)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	require.NotNil(t, snap.GenerationCycle)
	assert.Equal(t, int64(1000), snap.GenerationCycle.Count)
}
