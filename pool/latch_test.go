package pool_test

import (
	"sync/atomic"
	"testing"

	"pkg.world.dev/lattice/assert"
	"pkg.world.dev/lattice/pool"
)

func TestLatchExecuteAndWait(t *testing.T) {
	p := pool.New(4)
	defer p.Shutdown()

	const n = 8
	l := pool.NewLatch(n)
	var ran atomic.Int64
	l.ExecuteAndWait(func() {
		for i := 0; i < n; i++ {
			p.Submit(func() {
				ran.Add(1)
				l.Done()
			})
		}
	})
	assert.Equal(t, int64(n), ran.Load())
	assert.Check(t, l.Settled())
}

func TestZeroCountLatchDoesNotBlock(t *testing.T) {
	l := pool.NewLatch(0)
	l.ExecuteAndWait(func() {})
	assert.Check(t, l.Settled())
}

func TestLatchReuseAfterReset(t *testing.T) {
	l := pool.NewLatch(1)
	l.Done()
	l.Reset(2)
	l.Done()
	l.Done()
	l.Wait()
	assert.Check(t, l.Settled())
}

func TestDoneBelowZeroPanics(t *testing.T) {
	l := pool.NewLatch(0)
	defer func() {
		assert.Check(t, recover() != nil, "decrement below zero must panic")
	}()
	l.Done()
}

func TestResetUnsettledPanics(t *testing.T) {
	l := pool.NewLatch(2)
	l.Done()
	defer func() {
		assert.Check(t, recover() != nil)
	}()
	l.Reset(1)
}
