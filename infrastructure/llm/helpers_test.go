package llm

import (
	"context"
	"sync"
	"time"
)

// fakeCore is a scripted CoreLLM. Replies are consumed in order and the last
// one repeats.
type fakeCore struct {
	mu      sync.Mutex
	model   string
	replies []fakeReply
	block   bool
	prompts []string
	opts    []map[string]any
}

type fakeReply struct {
	text    string
	in, out int
	err     error
}

func newFakeCore(replies ...fakeReply) *fakeCore {
	if len(replies) == 0 {
		replies = []fakeReply{{text: "ok", in: 10, out: 20}}
	}
	return &fakeCore{model: "fake-model", replies: replies}
}

func (f *fakeCore) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	r := f.replies[min(len(f.prompts)-1, len(f.replies)-1)]
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", 0, 0, ctx.Err()
	}
	return r.text, r.in, r.out, r.err
}

func (f *fakeCore) GetModel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model
}

func (f *fakeCore) SetModel(m string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.model = m
}

func (f *fakeCore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeCore) lastOpts() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts[len(f.opts)-1]
}

func (f *fakeCore) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type metricCall struct {
	kind   string
	name   string
	value  float64
	labels map[string]string
}

// recordingCollector is a ports.MetricsCollector that keeps every call.
type recordingCollector struct {
	mu    sync.Mutex
	calls []metricCall
}

func (r *recordingCollector) add(kind, name string, v float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, metricCall{kind: kind, name: name, value: v, labels: labels})
}

func (r *recordingCollector) RecordLatency(op string, d time.Duration, labels map[string]string) {
	r.add("latency", op, d.Seconds(), labels)
}

func (r *recordingCollector) RecordCounter(m string, v float64, labels map[string]string) {
	r.add("counter", m, v, labels)
}

func (r *recordingCollector) RecordGauge(m string, v float64, labels map[string]string) {
	r.add("gauge", m, v, labels)
}

func (r *recordingCollector) RecordHistogram(m string, v float64, labels map[string]string) {
	r.add("histogram", m, v, labels)
}

func (r *recordingCollector) named(name string) []metricCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []metricCall
	for _, c := range r.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}
