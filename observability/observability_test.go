package observability

import (
	"testing"
	"time"

	"github.com/hazyhaar/quizd/dbopen"
	_ "modernc.org/sqlite"
)

func TestRing_Bounded(t *testing.T) {
	// WHAT: The ring never exceeds its capacity; oldest entries are evicted.
	// WHY: Log memory must stay bounded for the lifetime of the process.
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(LevelInfo, string(rune('a'+i)))
	}
	if r.Len() != 3 {
		t.Fatalf("len: got %d, want 3", r.Len())
	}
	entries := r.Recent(0)
	if entries[0].Message != "c" || entries[2].Message != "e" {
		t.Errorf("eviction order wrong: %v", entries)
	}
}

func TestRing_RecentLimit(t *testing.T) {
	// WHAT: Recent(n) returns the n newest entries, oldest first.
	// WHY: The /logs endpoint takes a limit parameter.
	r := NewRing(10)
	r.Append(LevelInfo, "one")
	r.Append(LevelWarning, "two")
	r.Append(LevelError, "three")
	got := r.Recent(2)
	if len(got) != 2 || got[0].Message != "two" || got[1].Message != "three" {
		t.Errorf("recent: %v", got)
	}
}

func TestTasks_Lifecycle(t *testing.T) {
	// WHAT: Create → SetState → Fail transitions are observable via Get.
	// WHY: The status endpoint reports per-task progress.
	reg := NewTasks()
	id := reg.Create("https://quiz.test/q1")

	task, ok := reg.Get(id)
	if !ok || task.State != TaskProcessing {
		t.Fatalf("initial state: %v %v", ok, task.State)
	}

	reg.SetState(id, TaskSolving)
	task, _ = reg.Get(id)
	if task.State != TaskSolving || task.FinishedAt != nil {
		t.Errorf("solving: %+v", task)
	}

	reg.Fail(id, "boom")
	task, _ = reg.Get(id)
	if task.State != TaskFailed || task.Error != "boom" || task.FinishedAt == nil {
		t.Errorf("failed: %+v", task)
	}
}

func TestTasks_Sweep(t *testing.T) {
	// WHAT: Terminal tasks older than the retention window disappear.
	// WHY: The registry must not grow without bound.
	reg := NewTasks(WithRetention(time.Millisecond))
	id := reg.Create("https://quiz.test/q1")
	reg.SetState(id, TaskCompleted)
	time.Sleep(5 * time.Millisecond)
	reg.Sweep()
	if _, ok := reg.Get(id); ok {
		t.Error("terminal task survived sweep")
	}

	// Non-terminal tasks are never swept.
	live := reg.Create("https://quiz.test/q2")
	time.Sleep(5 * time.Millisecond)
	reg.Sweep()
	if _, ok := reg.Get(live); !ok {
		t.Error("live task was swept")
	}
}

func TestEventLogger_Persists(t *testing.T) {
	// WHAT: Queued events land in the quiz_events table after Close.
	// WHY: Terminal chain states must survive process restarts.
	db := dbopen.OpenMemory(t, dbopen.WithSchema(EventSchema))
	l := NewEventLogger(db, 8)
	l.Log(Event{EventType: "chain_start", TaskID: "task_1", URL: "https://quiz.test/q1", Success: true})
	l.Log(Event{EventType: "chain_failed", TaskID: "task_1", Success: false})
	l.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM quiz_events WHERE task_id = 'task_1'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("events: got %d, want 2", n)
	}
}
