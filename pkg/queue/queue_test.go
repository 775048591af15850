package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"mercator-hq/kate/pkg/service"
)

type fakeBroker struct {
	mu        sync.Mutex
	failures  int
	declared  map[string]int
	published []fakeMessage
	msgIDs    []string
	closed    bool
}

type fakeMessage struct {
	queue string
	msgID string
	data  []byte
}

func newFakeBroker(failures int) *fakeBroker {
	return &fakeBroker{failures: failures, declared: make(map[string]int)}
}

func (b *fakeBroker) Declare(_ context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declared[queue]++
	return nil
}

func (b *fakeBroker) Publish(_ context.Context, queue, msgID string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgIDs = append(b.msgIDs, msgID)
	if b.failures != 0 {
		if b.failures > 0 {
			b.failures--
		}
		return errors.New("broker unavailable")
	}
	b.published = append(b.published, fakeMessage{queue: queue, msgID: msgID, data: data})
	return nil
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBroker) messages() []fakeMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]fakeMessage(nil), b.published...)
}

func (b *fakeBroker) attempts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.msgIDs...)
}

func (b *fakeBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type countingDialer struct {
	mu     sync.Mutex
	dials  int
	broker Broker
	err    error
}

func (d *countingDialer) Dial(_ context.Context, _ *service.MessageQueue) (Broker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.broker, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
	retries  int
}

func (o *recordingObserver) ObservePublish(_ string, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome]++
}

func (o *recordingObserver) ObservePublishRetry(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries++
}

func fastQueue(retries int) *service.MessageQueue {
	return &service.MessageQueue{Host: "localhost", Port: 4222, Retries: retries, InitialDelayMs: 1, MaxDelayMs: 5}
}

func TestTransform(t *testing.T) {
	src := Source{
		Template: "/tenants/{tenant}/events",
		Path:     "/tenants/acme/events",
		Header:   http.Header{"X-Source": []string{"mobile"}},
		Lookup: func(path string) (string, bool) {
			if path == "data.userId" {
				return "42", true
			}
			return "", false
		},
	}

	tests := []struct {
		name string
		body string
		tf   service.Transformation
		want map[string]any
	}{
		{
			name: "path by bare name",
			body: `{"kind":"signup"}`,
			tf:   service.Transformation{FromKey: "tenant", ToKey: "tenant", Source: service.SourcePath},
			want: map[string]any{"kind": "signup", "tenant": "acme"},
		},
		{
			name: "path by braced name",
			body: `{}`,
			tf:   service.Transformation{FromKey: "{tenant}", ToKey: "t", Source: service.SourcePath},
			want: map[string]any{"t": "acme"},
		},
		{
			name: "unknown path param is empty",
			body: `{}`,
			tf:   service.Transformation{FromKey: "region", ToKey: "region", Source: service.SourcePath},
			want: map[string]any{"region": ""},
		},
		{
			name: "header",
			body: `{}`,
			tf:   service.Transformation{FromKey: "X-Source", ToKey: "channel", Source: service.SourceHeader},
			want: map[string]any{"channel": "mobile"},
		},
		{
			name: "key defaults to caller lookup",
			body: `{"n":1}`,
			tf:   service.Transformation{FromKey: "data.userId", ToKey: "owner"},
			want: map[string]any{"n": float64(1), "owner": "42"},
		},
		{
			name: "existing key is kept",
			body: `{"owner":"7"}`,
			tf:   service.Transformation{FromKey: "data.userId", ToKey: "owner", Source: service.SourceKey},
			want: map[string]any{"owner": "7"},
		},
		{
			name: "data body envelope",
			body: `{"n":1}`,
			tf: service.Transformation{
				FromKey:  "X-Source",
				ToKey:    "channel",
				Source:   service.SourceHeader,
				DataBody: "event=created, data=body,broken",
			},
			want: map[string]any{
				"event": "created",
				"data":  map[string]any{"n": float64(1), "channel": "mobile"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Transform([]byte(tt.body), &tt.tf, src)
			if err != nil {
				t.Fatalf("Transform() error = %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(out, &got); err != nil {
				t.Fatalf("output is not JSON: %s", out)
			}
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("Transform() = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestTransform_NotObject(t *testing.T) {
	tf := &service.Transformation{FromKey: "a", ToKey: "b"}
	for _, body := range []string{`[1,2]`, `"text"`, `null`, `not json`} {
		if _, err := Transform([]byte(body), tf, Source{}); !errors.Is(err, ErrNotObject) {
			t.Errorf("Transform(%s) error = %v, want ErrNotObject", body, err)
		}
	}
}

func TestTransform_KeyWithoutCaller(t *testing.T) {
	tf := &service.Transformation{FromKey: "data.userId", ToKey: "owner"}
	out, err := Transform([]byte(`{}`), tf, Source{})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"owner":""}` {
		t.Errorf("Transform() = %s", out)
	}
}

func TestConnections(t *testing.T) {
	broker := newFakeBroker(0)
	dialer := &countingDialer{broker: broker}
	conns := NewConnections(dialer)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := conns.Get(ctx, "orders", fastQueue(1)); err != nil {
				t.Errorf("Get() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if dialer.dials != 1 {
		t.Errorf("dials = %d, want 1", dialer.dials)
	}
	if conns.Len() != 1 {
		t.Errorf("Len() = %d, want 1", conns.Len())
	}

	conns.Drop("orders")
	if !broker.isClosed() {
		t.Error("Drop should close the connection")
	}
	if conns.Len() != 0 {
		t.Errorf("Len() after Drop = %d", conns.Len())
	}

	if _, err := conns.Get(ctx, "orders", fastQueue(1)); err != nil {
		t.Fatal(err)
	}
	if dialer.dials != 2 {
		t.Errorf("dials after Drop = %d, want 2", dialer.dials)
	}

	if err := conns.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := conns.Get(ctx, "orders", fastQueue(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close error = %v, want ErrClosed", err)
	}
}

func TestConnections_DialError(t *testing.T) {
	conns := NewConnections(&countingDialer{err: errors.New("refused")})
	if _, err := conns.Get(context.Background(), "orders", fastQueue(1)); err == nil {
		t.Fatal("expected dial error")
	}
	if conns.Len() != 0 {
		t.Error("failed dial must not be cached")
	}
}

func TestPublisher_Publish(t *testing.T) {
	broker := newFakeBroker(0)
	obs := &recordingObserver{}
	conns := NewConnections(&countingDialer{broker: broker})
	p := NewPublisher("orders", fastQueue(3), conns, WithObserver(obs))

	msgID, err := p.Publish("orders.created", []byte(`{"id":1}`))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	p.Close()

	msgs := broker.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].queue != "orders.created" || msgs[0].msgID != msgID || string(msgs[0].data) != `{"id":1}` {
		t.Errorf("message = %+v", msgs[0])
	}
	if broker.declared["orders.created"] != 1 {
		t.Errorf("declared = %v", broker.declared)
	}
	if obs.outcomes[OutcomeSuccess] != 1 {
		t.Errorf("outcomes = %v", obs.outcomes)
	}

	if _, err := p.Publish("orders.created", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrClosed", err)
	}
}

func TestPublisher_RetriesWithSameID(t *testing.T) {
	broker := newFakeBroker(2)
	obs := &recordingObserver{}
	p := NewPublisher("orders", fastQueue(5), NewConnections(&countingDialer{broker: broker}), WithObserver(obs))

	if err := p.Send(context.Background(), "q", "msg-1", []byte(`{}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	ids := broker.attempts()
	if len(ids) != 3 {
		t.Fatalf("attempts = %d, want 3", len(ids))
	}
	for _, id := range ids {
		if id != "msg-1" {
			t.Errorf("attempt used msg id %q", id)
		}
	}
	if obs.retries != 2 || obs.outcomes[OutcomeSuccess] != 1 {
		t.Errorf("retries = %d, outcomes = %v", obs.retries, obs.outcomes)
	}
}

func TestPublisher_GivesUp(t *testing.T) {
	broker := newFakeBroker(-1)
	obs := &recordingObserver{}
	p := NewPublisher("orders", fastQueue(3), NewConnections(&countingDialer{broker: broker}), WithObserver(obs))

	err := p.Send(context.Background(), "q", "msg-1", []byte(`{}`))
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("Send() error = %v, want PublishError", err)
	}
	if pe.Attempts != 3 || pe.Queue != "q" {
		t.Errorf("PublishError = %+v", pe)
	}
	if len(broker.attempts()) != 3 {
		t.Errorf("attempts = %d, want 3", len(broker.attempts()))
	}
	if obs.outcomes[OutcomeFailure] != 1 {
		t.Errorf("outcomes = %v", obs.outcomes)
	}
}

func TestPublisher_CloseStopsUnlimitedRetries(t *testing.T) {
	broker := newFakeBroker(-1)
	obs := &recordingObserver{}
	p := NewPublisher("orders", fastQueue(0), NewConnections(&countingDialer{broker: broker}), WithObserver(obs))

	if _, err := p.Publish("q", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(broker.attempts()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the retry loop")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.outcomes[OutcomeCancelled] != 1 {
		t.Errorf("outcomes = %v, want one cancelled", obs.outcomes)
	}
}

func TestStreamName(t *testing.T) {
	tests := []struct {
		prefix, queue, want string
	}{
		{"KATE", "orders", "KATE_ORDERS"},
		{"KATE", "orders.created", "KATE_ORDERS_CREATED"},
		{"KATE", "a b>c*", "KATE_A_B_C_"},
		{"", "events", "EVENTS"},
	}
	for _, tt := range tests {
		if got := StreamName(tt.prefix, tt.queue); got != tt.want {
			t.Errorf("StreamName(%q, %q) = %q, want %q", tt.prefix, tt.queue, got, tt.want)
		}
	}
}

func TestJetStreamBroker(t *testing.T) {
	raw := os.Getenv("KATE_TEST_NATS_URL")
	if raw == "" {
		t.Skip("KATE_TEST_NATS_URL not set")
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid KATE_TEST_NATS_URL: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("invalid KATE_TEST_NATS_URL host: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mq := &service.MessageQueue{Host: host, Port: port}
	b, err := DialJetStream(ctx, mq, Options{StreamPrefix: "KATETEST"})
	if err != nil {
		t.Fatalf("DialJetStream() error = %v", err)
	}
	defer b.Close()

	queue := "kate.test." + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := b.Declare(ctx, queue); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	if err := b.Publish(ctx, queue, "id-1", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Publish(ctx, queue, "id-1", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("duplicate Publish() error = %v", err)
	}

	stream, err := b.js.Stream(ctx, b.StreamName(queue))
	if err != nil {
		t.Fatal(err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.State.Msgs != 1 {
		t.Errorf("stream holds %d messages, want 1 after deduplication", info.State.Msgs)
	}
	_ = b.js.DeleteStream(ctx, b.StreamName(queue))
}
