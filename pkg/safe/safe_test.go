package safe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoRecoversPanic(t *testing.T) {
	var wg sync.WaitGroup
	var caught error
	var mu sync.Mutex

	wg.Add(1)
	Go(func() {
		defer wg.Done()
		panic("boom")
	}, func(err error) {
		mu.Lock()
		caught = err
		mu.Unlock()
	})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Error(t, caught)
	var panicErr *PanicError
	ok := assertAsPanicError(caught, &panicErr)
	assert.True(t, ok)
	assert.Equal(t, "boom", panicErr.Info)
}

func assertAsPanicError(err error, target **PanicError) bool {
	pe, ok := err.(*PanicError)
	if ok {
		*target = pe
	}
	return ok
}

func TestGoRunsWithoutPanic(t *testing.T) {
	var wg sync.WaitGroup
	ran := false
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		ran = true
	}, nil)
	wg.Wait()
	assert.True(t, ran)
}
