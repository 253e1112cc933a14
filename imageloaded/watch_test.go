package imageloaded

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAccept_EmptyPayloadIsAccepted(t *testing.T) {
	v, ok := Accepted("").Value()
	if !ok || v != "" {
		t.Errorf("Accepted(\"\"): got (%q, %v), want (\"\", true)", v, ok)
	}
	if _, ok := Pending[string]().Value(); ok {
		t.Error("Pending: got accepted")
	}
	var zero Accept[int]
	if _, ok := zero.Value(); ok {
		t.Error("zero Accept: got accepted")
	}
}

func TestWatch_StopsBeforeAccept(t *testing.T) {
	h := newFakeHost()
	el := newFakeElement(h, "DIV")

	var calls atomic.Int32
	stoppedAtAccept := make(chan bool, 4)

	var sub *fakeSub
	w, err := Watch(context.Background(), h, el, "data-x",
		func(_ Element, v string) Accept[string] {
			if v == "go" {
				return Accepted(v)
			}
			return Pending[string]()
		},
		func(_ Element, v string) {
			calls.Add(1)
			stoppedAtAccept <- sub.isStopped()
		})
	if err != nil {
		t.Fatal(err)
	}
	sub = waitSub(t, h)

	el.setAttr("data-x", "wait")
	el.setAttr("data-x", "go")
	el.setAttr("data-x", "go") // after stop: must be ignored

	select {
	case <-w.Done():
	case <-time.After(waitTimeout):
		t.Fatal("watch never finished")
	}
	if err := w.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("onAccept calls: got %d, want 1", n)
	}
	if !<-stoppedAtAccept {
		t.Error("subscription still live when onAccept ran")
	}
}

func TestWatch_ProcessesInOrder(t *testing.T) {
	h := newFakeHost()
	el := newFakeElement(h, "IMG")

	seen := make(chan string, 8)
	w, err := Watch(context.Background(), h, el, "src",
		func(_ Element, v string) Accept[int] {
			seen <- v
			if v == "c" {
				return Accepted(3)
			}
			return Pending[int]()
		},
		func(Element, int) {})
	if err != nil {
		t.Fatal(err)
	}
	waitSub(t, h)

	for _, v := range []string{"a", "b", "c"} {
		el.setAttr("src", v)
		select {
		case got := <-seen:
			if got != v {
				t.Fatalf("predicate value: got %q, want %q", got, v)
			}
		case <-time.After(waitTimeout):
			t.Fatalf("predicate never saw %q", v)
		}
	}
	<-w.Done()
}

func TestWatchOnce_Change(t *testing.T) {
	h := newFakeHost()
	el := newFakeElement(h, "IMG")

	go func() {
		<-h.subscribed
		el.setAttr("src", "photo.jpg")
	}()

	change, err := WatchOnce(context.Background(), h, el, "src",
		func(_ Element, v string) Accept[bool] {
			if v != "" {
				return Accepted(true)
			}
			return Pending[bool]()
		})
	if err != nil {
		t.Fatal(err)
	}
	if change.Target != Element(el) {
		t.Errorf("Target: got %v, want %v", change.Target, el)
	}
	if change.Name != "src" {
		t.Errorf("Name: got %q, want %q", change.Name, "src")
	}
	if !change.Value {
		t.Errorf("Value: got %v, want true", change.Value)
	}
}

func TestWatch_Recheck(t *testing.T) {
	h := newFakeHost()
	el := newFakeElement(h, "IMG")
	el.attrs["src"] = "already.jpg"

	change, err := WatchOnce(context.Background(), h, el, "src",
		func(_ Element, v string) Accept[string] {
			if v != "" {
				return Accepted(v)
			}
			return Pending[string]()
		}, Recheck())
	if err != nil {
		t.Fatal(err)
	}
	if change.Value != "already.jpg" {
		t.Errorf("Value: got %q, want %q", change.Value, "already.jpg")
	}
}

func TestWatch_ContextCancel(t *testing.T) {
	h := newFakeHost()
	el := newFakeElement(h, "IMG")

	ctx, cancel := context.WithCancel(context.Background())
	var accepted atomic.Bool
	w, err := Watch(ctx, h, el, "src",
		func(Element, string) Accept[bool] { return Pending[bool]() },
		func(Element, bool) { accepted.Store(true) })
	if err != nil {
		t.Fatal(err)
	}
	sub := waitSub(t, h)
	el.setAttr("src", "x.jpg")
	cancel()

	<-w.Done()
	if !errors.Is(w.Err(), context.Canceled) {
		t.Errorf("Err: got %v, want context.Canceled", w.Err())
	}
	if accepted.Load() {
		t.Error("onAccept called after cancellation")
	}
	if !sub.isStopped() {
		t.Error("subscription not stopped")
	}
}

func TestWatch_StreamClosed(t *testing.T) {
	h := newFakeHost()
	el := newFakeElement(h, "IMG")

	go func() { (<-h.subscribed).closeStream() }()
	_, err := WatchOnce(context.Background(), h, el, "src",
		func(Element, string) Accept[bool] { return Pending[bool]() })
	if !errors.Is(err, ErrWatchClosed) {
		t.Errorf("err: got %v, want ErrWatchClosed", err)
	}
}

func TestWatch_ReadErrorStops(t *testing.T) {
	h := newFakeHost()
	el := newFakeElement(h, "IMG")
	boom := errors.New("boom")
	el.readErr = boom

	go func() {
		<-h.subscribed
		h.notify(el, "src")
	}()
	_, err := WatchOnce(context.Background(), h, el, "src",
		func(Element, string) Accept[bool] { return Accepted(true) })
	if !errors.Is(err, boom) {
		t.Errorf("err: got %v, want %v", err, boom)
	}
}

func TestWatch_NeverAcceptedNeverSettles(t *testing.T) {
	h := newFakeHost()
	el := newFakeElement(h, "DIV")

	w, err := Watch(context.Background(), h, el, "style",
		func(Element, string) Accept[bool] { return Pending[bool]() },
		func(Element, bool) {})
	if err != nil {
		t.Fatal(err)
	}
	waitSub(t, h)
	for i := 0; i < 5; i++ {
		el.setAttr("style", "color: red")
	}

	select {
	case <-w.Done():
		t.Fatalf("watch ended without acceptance: %v", w.Err())
	case <-time.After(100 * time.Millisecond):
	}
}
