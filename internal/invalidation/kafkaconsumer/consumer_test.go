package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/chomoku/kyoto-hexmap/internal/invalidation"
)

type fakeResults struct {
	failFirst atomic.Bool
	mu        sync.Mutex
	seen      []string
}

func (f *fakeResults) Invalidate(_ context.Context, dataset string) (int, error) {
	f.mu.Lock()
	f.seen = append(f.seen, dataset)
	f.mu.Unlock()
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return 0, errors.New("boom")
	}
	return 2, nil
}

type fakeEvictor struct {
	mu      sync.Mutex
	evicted []string
}

func (f *fakeEvictor) Evict(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, path)
	return true
}

func resolve(name string) (string, []string, bool) {
	switch name {
	case "suikei", "人口推計":
		return "data/kyoto_suikei.gpkg", []string{"suikei"}, true
	case "facilities":
		return "data/kyoto_iryo_kikan.gpkg", []string{"kokusei", "suikei"}, true
	}
	return "", nil, false
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "dataset-updates" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func eventBytes(dataset string) []byte {
	b, _ := json.Marshal(invalidation.Event{Version: 1, Op: "update", Dataset: dataset, TS: time.Now().UTC()})
	return b
}

func newConsumerForTest(r ResultInvalidator, e *fakeEvictor) *Consumer {
	cfg := Config{Brokers: []string{"x"}, Topic: "dataset-updates", GroupID: "g"}
	return New(cfg, slog.Default(), r, e, resolve)
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	fr := &fakeResults{}
	fe := &fakeEvictor{}
	c := newConsumerForTest(fr, fe)

	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- &sarama.ConsumerMessage{Topic: "dataset-updates", Offset: 10, Value: eventBytes("suikei")}
	ch <- &sarama.ConsumerMessage{Topic: "dataset-updates", Offset: 11, Value: eventBytes("人口推計")}
	close(ch)

	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 || s.marked[0] != 10 || s.marked[1] != 11 {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
	if len(fr.seen) != 2 || fr.seen[1] != "suikei" {
		t.Fatalf("labels must resolve to keys; seen=%v", fr.seen)
	}
	if len(fe.evicted) != 2 || fe.evicted[0] != "data/kyoto_suikei.gpkg" {
		t.Fatalf("evicted=%v", fe.evicted)
	}
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	fr := &fakeResults{}
	fr.failFirst.Store(true)
	c := newConsumerForTest(fr, &fakeEvictor{})
	ctx := context.Background()

	msg := &sarama.ConsumerMessage{Topic: "dataset-updates", Offset: 5, Value: eventBytes("suikei")}
	if err := c.ProcessOne(ctx, msg); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	s := &sess{ctx: ctx}
	g := &groupHandler{process: c.ProcessOne}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg
	close(ch)
	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if len(s.marked) != 1 || s.marked[0] != 5 {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
}

func TestProcessOne_SkipsBadAndUnknownEvents(t *testing.T) {
	fr := &fakeResults{}
	fe := &fakeEvictor{}
	c := newConsumerForTest(fr, fe)
	ctx := context.Background()

	for i, v := range [][]byte{
		[]byte("{not json"),
		[]byte(`{"version":1,"op":"explode","dataset":"suikei","ts":"2025-01-01T00:00:00Z"}`),
		eventBytes("unknown"),
	} {
		if err := c.ProcessOne(ctx, &sarama.ConsumerMessage{Offset: int64(i), Value: v}); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
	}
	if len(fr.seen) != 0 || len(fe.evicted) != 0 {
		t.Fatalf("nothing should be invalidated; results=%v evicted=%v", fr.seen, fe.evicted)
	}
}

func TestProcessOne_FacilitiesInvalidateEveryDataset(t *testing.T) {
	fr := &fakeResults{}
	fe := &fakeEvictor{}
	c := newConsumerForTest(fr, fe)
	if err := c.ProcessOne(context.Background(), &sarama.ConsumerMessage{Value: eventBytes("facilities")}); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if len(fr.seen) != 2 || len(fe.evicted) != 1 || fe.evicted[0] != "data/kyoto_iryo_kikan.gpkg" {
		t.Fatalf("results=%v evicted=%v", fr.seen, fe.evicted)
	}
}

func TestProcessOne_WithoutRenderCache(t *testing.T) {
	fe := &fakeEvictor{}
	c := newConsumerForTest(nil, fe)
	if err := c.ProcessOne(context.Background(), &sarama.ConsumerMessage{Value: eventBytes("suikei")}); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if len(fe.evicted) != 1 {
		t.Fatalf("evicted=%v", fe.evicted)
	}
}

func TestMultiPartition_Parallel_NoCrossOrdering(t *testing.T) {
	c := newConsumerForTest(&fakeResults{}, &fakeEvictor{})
	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}

	p0 := make(chan *sarama.ConsumerMessage, 2)
	p1 := make(chan *sarama.ConsumerMessage, 2)
	p0 <- &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 1, Value: eventBytes("suikei")}
	p0 <- &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 2, Value: eventBytes("suikei")}
	p1 <- &sarama.ConsumerMessage{Topic: "t", Partition: 1, Offset: 1, Value: eventBytes("suikei")}
	p1 <- &sarama.ConsumerMessage{Topic: "t", Partition: 1, Offset: 2, Value: eventBytes("suikei")}
	close(p0)
	close(p1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 0, msgs: p0}) }()
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 1, msgs: p1}) }()
	wg.Wait()

	if len(s.marked) != 4 {
		t.Fatalf("expected 4 marks total; got %v", s.marked)
	}
}

type fakeHotness struct{ forgot []string }

func (f *fakeHotness) ForgetDataset(dataset string) int {
	f.forgot = append(f.forgot, dataset)
	return 1
}

func TestProcessOne_DeleteForgetsHotCenters(t *testing.T) {
	hot := &fakeHotness{}
	c := newConsumerForTest(&fakeResults{}, &fakeEvictor{})
	c.ForgetHotness(hot)
	ctx := context.Background()

	if err := c.ProcessOne(ctx, &sarama.ConsumerMessage{Value: eventBytes("suikei")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(hot.forgot) != 0 {
		t.Fatalf("an update keeps hot centers; forgot=%v", hot.forgot)
	}

	b, _ := json.Marshal(invalidation.Event{Version: 1, Op: "delete", Dataset: "facilities", TS: time.Now().UTC()})
	if err := c.ProcessOne(ctx, &sarama.ConsumerMessage{Value: b}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(hot.forgot) != 2 || hot.forgot[0] != "kokusei" || hot.forgot[1] != "suikei" {
		t.Fatalf("forgot=%v want [kokusei suikei]", hot.forgot)
	}
}

func TestConsumeClaim_MarksTombstonesWithoutWork(t *testing.T) {
	fr := &fakeResults{}
	c := newConsumerForTest(fr, &fakeEvictor{})
	g := &groupHandler{process: c.ProcessOne, logger: slog.Default()}
	s := &sess{ctx: t.Context()}
	if err := g.Setup(s); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- &sarama.ConsumerMessage{Topic: "dataset-updates", Offset: 3}
	ch <- &sarama.ConsumerMessage{Topic: "dataset-updates", Offset: 4, Value: eventBytes("suikei")}
	close(ch)
	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 || len(fr.seen) != 1 {
		t.Fatalf("marked=%v invalidated=%v", s.marked, fr.seen)
	}
}
