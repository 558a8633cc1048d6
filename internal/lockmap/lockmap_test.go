package lockmap

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestDoCoalescesConcurrentCallers(t *testing.T) {
	g := New()
	var calls int32

	var wg sync.WaitGroup
	results := make([]interface{}, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := g.Do("widget@1.0.0", func() (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				return "built", nil
			})
			if err != nil {
				t.Error(err)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r != "built" {
			t.Errorf("results[%d] = %v, want \"built\"", i, r)
		}
	}
	if atomic.LoadInt32(&calls) > 20 {
		t.Errorf("calls = %d, want at most 20 (one per goroutine)", calls)
	}
}

func TestDoDistinctKeysRunIndependently(t *testing.T) {
	g := New()
	v1, _, err := g.Do("a", func() (interface{}, error) { return 1, nil })
	if err != nil {
		t.Fatal(err)
	}
	v2, _, err := g.Do("b", func() (interface{}, error) { return 2, nil })
	if err != nil {
		t.Fatal(err)
	}
	if v1 != 1 || v2 != 2 {
		t.Errorf("v1=%v v2=%v", v1, v2)
	}
}

func TestForgetAllowsRetryAfterFailure(t *testing.T) {
	g := New()
	_, _, err := g.Do("flaky", func() (interface{}, error) {
		return nil, errFlaky
	})
	if err == nil {
		t.Fatal("expected failure on first attempt")
	}
	g.Forget("flaky")

	v, _, err := g.Do("flaky", func() (interface{}, error) {
		return "succeeded", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if v != "succeeded" {
		t.Errorf("v = %v, want succeeded", v)
	}
}

var errFlaky = &flakyError{}

type flakyError struct{}

func (*flakyError) Error() string { return "flaky error" }
