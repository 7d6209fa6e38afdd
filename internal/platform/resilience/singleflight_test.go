package resilience

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSingleFlight_CollapsesConcurrentCalls(t *testing.T) {
	var flight SingleFlight
	var calls atomic.Int32

	fn := func() (any, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return 42, nil
	}

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	var shared atomic.Int32
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err, wasShared := flight.Do("key", fn)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if got, _ := v.(int); got != 42 {
				t.Errorf("unexpected value: %v", v)
			}
			if wasShared {
				shared.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fn ran %d times, want 1", got)
	}
	if got := shared.Load(); got != workers-1 {
		t.Fatalf("%d callers observed a shared result, want %d", got, workers-1)
	}
}

func TestSingleFlight_DistinctKeysRunIndependently(t *testing.T) {
	var flight SingleFlight
	var calls atomic.Int32

	fn := func() (any, error) {
		calls.Add(1)
		return nil, nil
	}

	if _, _, shared := flight.Do("a", fn); shared {
		t.Fatal("first key should not be shared")
	}
	if _, _, shared := flight.Do("b", fn); shared {
		t.Fatal("second key should not be shared")
	}

	if got := calls.Load(); got != 2 {
		t.Fatalf("fn ran %d times, want 2", got)
	}
}

func TestSingleFlight_KeyReusableAfterCompletion(t *testing.T) {
	var flight SingleFlight
	var calls atomic.Int32

	fn := func() (any, error) {
		calls.Add(1)
		return nil, nil
	}

	flight.Do("key", fn)
	flight.Do("key", fn)

	if got := calls.Load(); got != 2 {
		t.Fatalf("fn ran %d times after sequential calls, want 2", got)
	}
}
