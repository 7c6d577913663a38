package looper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPostRunsInOrder(t *testing.T) {
	l := New("test")
	defer l.Quit()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		if err := l.Post(func() { got = append(got, i) }); err != nil {
			t.Fatal(err)
		}
	}
	if err := Sync(context.Background(), l); err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
	if len(got) != 100 {
		t.Fatalf("want 100 tasks, got %d", len(got))
	}
}

func TestCallReturnsResult(t *testing.T) {
	l := New("test")
	defer l.Quit()

	v, err := Call(context.Background(), l, func() (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("got %d, %v", v, err)
	}

	wantErr := errors.New("boom")
	_, err = Call(context.Background(), l, func() (int, error) { return 0, wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("want %v, got %v", wantErr, err)
	}
}

func TestCallsAreSerialized(t *testing.T) {
	l := New("test")
	defer l.Quit()

	var (
		wg      sync.WaitGroup
		running int
		maxSeen int
		counter int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = Do(context.Background(), l, func() error {
				running++
				if running > maxSeen {
					maxSeen = running
				}
				time.Sleep(time.Millisecond)
				counter++
				running--
				return nil
			})
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("tasks overlapped: %d at once", maxSeen)
	}
	if counter != 20 {
		t.Fatalf("want 20 tasks, got %d", counter)
	}
}

func TestCallAfterQuitFailsFast(t *testing.T) {
	l := New("test")
	l.Quit()
	<-l.Done()

	if err := Sync(context.Background(), l); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if err := l.Post(func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

func TestQuitDrainsAcceptedTasks(t *testing.T) {
	l := New("test")

	block := make(chan struct{})
	_ = l.Post(func() { <-block })

	ran := make(chan struct{})
	_ = l.Post(func() { close(ran) })
	l.Quit()
	close(block)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task accepted before Quit did not run")
	}
	<-l.Done()
}

func TestCallHonoursContext(t *testing.T) {
	l := New("test")
	defer l.Quit()

	release := make(chan struct{})
	_ = l.Post(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	finished := make(chan struct{})
	_, err := Call(ctx, l, func() (int, error) {
		close(finished)
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}

	// the abandoned call still runs once the looper gets to it
	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("abandoned call never ran")
	}
	if err := Sync(context.Background(), l); err != nil {
		t.Fatal(err)
	}
}

func TestPostDelayedCancel(t *testing.T) {
	l := New("test")
	defer l.Quit()

	fired := make(chan struct{}, 1)
	cancel := l.PostDelayed(func() { fired <- struct{}{} }, 50*time.Millisecond)
	cancel()

	l.PostDelayed(func() { fired <- struct{}{} }, time.Millisecond)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("delayed task did not run")
	}
	time.Sleep(100 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("cancelled task ran")
	default:
	}
}
