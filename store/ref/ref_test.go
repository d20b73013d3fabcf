package ref

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestValueLoadsOnce(t *testing.T) {
	var loads int32
	r := New("k1", func(id string) (int, error) {
		atomic.AddInt32(&loads, 1)
		return 42, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := r.Value()
			if err != nil || v != 42 {
				t.Errorf("unexpected value %v, err %v", v, err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&loads); got != 1 {
		t.Fatalf("expected exactly one load, got %d", got)
	}
}

func TestTryValueBeforeLoad(t *testing.T) {
	r := New("k2", func(id string) (string, error) { return "v", nil })
	if _, ok := r.TryValue(); ok {
		t.Fatalf("expected no cached value before first Value() call")
	}
	if _, err := r.Value(); err != nil {
		t.Fatal(err)
	}
	v, ok := r.TryValue()
	if !ok || v != "v" {
		t.Fatalf("expected cached value %q, got %q ok=%v", "v", v, ok)
	}
}

func TestEvictForcesReload(t *testing.T) {
	var loads int32
	r := New("k3", func(id string) (int, error) {
		n := atomic.AddInt32(&loads, 1)
		return int(n), nil
	})
	first, _ := r.Value()
	r.Evict()
	second, _ := r.Value()
	if first == second {
		t.Fatalf("expected reload to produce a new value: first=%d second=%d", first, second)
	}
}

func TestLoaderError(t *testing.T) {
	r := New("k4", func(id string) (int, error) { return 0, fmt.Errorf("boom") })
	if _, err := r.Value(); err == nil {
		t.Fatal("expected error from loader")
	}
	if _, ok := r.TryValue(); ok {
		t.Fatal("expected no cached value after failed load")
	}
}
