package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFeed_SubscribeEmitCancel(t *testing.T) {
	var f Feed[int]
	var got []int

	cancelA := f.Subscribe(func(v int) { got = append(got, v) })
	f.Subscribe(func(v int) { got = append(got, v*10) })
	assert.Equal(t, 2, f.Len())

	f.Emit(1)
	assert.Equal(t, []int{1, 10}, got)

	cancelA()
	cancelA()
	assert.Equal(t, 1, f.Len())

	f.Emit(2)
	assert.Equal(t, []int{1, 10, 20}, got)
}

func TestFeed_ReentrantEmit(t *testing.T) {
	var f Feed[string]
	var got []string
	f.Subscribe(func(v string) {
		got = append(got, v)
		if v == "outer" {
			f.Emit("inner")
		}
	})
	f.Emit("outer")
	assert.Equal(t, []string{"outer", "inner"}, got)
}
