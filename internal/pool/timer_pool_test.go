package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerPool(t *testing.T) {
	assert := assert.New(t)

	t.Run("Get and Put", func(t *testing.T) {
		timer1 := GetTimer(10 * time.Millisecond)
		assert.NotNil(timer1)
		PutTimer(timer1)

		timer2 := GetTimer(20 * time.Millisecond)
		assert.NotNil(timer2)
		<-timer2.C
		PutTimer(timer2)
	})

	t.Run("Reused timer does not fire early", func(t *testing.T) {
		timer1 := GetTimer(time.Millisecond)
		time.Sleep(5 * time.Millisecond)
		PutTimer(timer1)

		start := time.Now()
		timer2 := GetTimer(30 * time.Millisecond)
		<-timer2.C
		assert.GreaterOrEqual(time.Since(start), 25*time.Millisecond)
		PutTimer(timer2)
	})
}

func TestSleep(t *testing.T) {
	assert := assert.New(t)

	start := time.Now()
	assert.NoError(Sleep(context.Background(), 15*time.Millisecond))
	assert.GreaterOrEqual(time.Since(start), 10*time.Millisecond)

	assert.NoError(Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	assert.ErrorIs(Sleep(ctx, time.Second), context.Canceled)
	assert.Less(time.Since(start), 500*time.Millisecond)
}
