package libcontainer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockWaitPIDSerializes(t *testing.T) {
	var inCritical int32
	var sawOverlap int32

	run := func() {
		unlock := lockWaitPID()
		defer unlock()
		if atomic.AddInt32(&inCritical, 1) > 1 {
			atomic.StoreInt32(&sawOverlap, 1)
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inCritical, -1)
	}

	done := make(chan struct{}, 2)
	go func() { run(); done <- struct{}{} }()
	go func() { run(); done <- struct{}{} }()
	<-done
	<-done

	assert.Equal(t, int32(0), atomic.LoadInt32(&sawOverlap), "lockWaitPID must serialize concurrent waiters")
}
