package ledger

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/cloudzz-dev/cldzlive/internal/client/message"
)

func floor(n int) message.Message {
	return message.Message{Floor: n, HasFloor: true, Source: message.SourcePoll}
}

func TestAdmitScenario(t *testing.T) {
	w := NewWatermark("room-1")

	var rendered []int
	admit := func(batch ...message.Message) {
		for _, m := range batch {
			if w.Admit(m) {
				rendered = append(rendered, m.Floor)
			}
		}
	}

	admit(floor(1))
	if w.LastFloor() != 1 || len(rendered) != 1 {
		t.Fatalf("After tick 1: lastFloor=%d rendered=%v", w.LastFloor(), rendered)
	}

	admit(floor(1), floor(2))
	if w.LastFloor() != 2 {
		t.Errorf("Expected lastFloor 2, got %d", w.LastFloor())
	}
	if len(rendered) != 2 || rendered[1] != 2 {
		t.Errorf("Expected only floor 2 to render on tick 2, got %v", rendered)
	}
}

func TestAdmitOverlappingTicksRenderOnce(t *testing.T) {
	w := NewWatermark("room-1")
	batch := []message.Message{floor(3), floor(4), floor(5)}

	count := map[int]int{}
	for tick := 0; tick < 2; tick++ {
		for _, m := range batch {
			if w.Admit(m) {
				count[m.Floor]++
			}
		}
	}
	for f, n := range count {
		if n != 1 {
			t.Errorf("Floor %d rendered %d times", f, n)
		}
	}
	if len(count) != 3 {
		t.Errorf("Expected 3 distinct renders, got %v", count)
	}
}

func TestAdmitRejectsMissingFloor(t *testing.T) {
	w := NewWatermark("room-1")
	if w.Admit(message.Message{Body: "push"}) {
		t.Error("Expected message without floor to be rejected")
	}
	if w.LastFloor() != 0 {
		t.Errorf("Expected lastFloor untouched, got %d", w.LastFloor())
	}
}

func TestLastFloorNeverDecreases(t *testing.T) {
	w := NewWatermark("room-1")
	rng := rand.New(rand.NewSource(42))

	prev := 0
	for i := 0; i < 500; i++ {
		w.Admit(floor(rng.Intn(100)))
		cur := w.LastFloor()
		if cur < prev {
			t.Fatalf("lastFloor decreased from %d to %d", prev, cur)
		}
		prev = cur
	}
}

func TestAdmitConcurrent(t *testing.T) {
	w := NewWatermark("room-1")

	var mu sync.Mutex
	seen := map[int]int{}
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := 1; f <= 200; f++ {
				if w.Admit(floor(f)) {
					mu.Lock()
					seen[f]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	for f, n := range seen {
		if n != 1 {
			t.Errorf("Floor %d admitted %d times", f, n)
		}
	}
	if w.LastFloor() != 200 {
		t.Errorf("Expected lastFloor 200, got %d", w.LastFloor())
	}
}

func TestLedgerRooms(t *testing.T) {
	l := New()
	a := l.Room("a")
	a.Admit(floor(7))

	if l.Room("a") != a {
		t.Error("Expected the same watermark for the same room")
	}
	if l.Room("b").LastFloor() != 0 {
		t.Error("Expected a fresh room to start at 0")
	}

	l.Forget("a")
	if l.Room("a").LastFloor() != 0 {
		t.Error("Expected a forgotten room to restart at 0")
	}
}
