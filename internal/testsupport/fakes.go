package testsupport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"pulsecam/internal/artifact"
	"pulsecam/internal/bus"
	"pulsecam/internal/clock"
	"pulsecam/internal/objectstore"
)

// EventLog records calls made on the fakes in the order they happened, so
// tests can assert on interleavings across workers.
type EventLog struct {
	mu     sync.Mutex
	events []string
}

// Add appends one event.
func (l *EventLog) Add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

// Events returns a snapshot.
func (l *EventLog) Events() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

// Count returns how many events start with prefix.
func (l *EventLog) Count(prefix string) int {
	n := 0
	for _, event := range l.Events() {
		if strings.HasPrefix(event, prefix) {
			n++
		}
	}
	return n
}

// FakeDevice is an in-memory device.Device.
type FakeDevice struct {
	Log   *EventLog
	Clock clock.Clock
	// Dir, when set, receives a small file per capture.
	Dir string
	// NoLocalFile produces artifacts without a local path.
	NoLocalFile bool
	// CaptureErr, when set, is consulted with the 1-based call number.
	CaptureErr func(n int) error
	// Hold, when set, is invoked inside Capture after the event is logged.
	Hold func(ctx context.Context)

	mu       sync.Mutex
	captures int
	prunes   int
	closed   bool
}

func (d *FakeDevice) Capture(ctx context.Context) (*artifact.Artifact, error) {
	d.mu.Lock()
	d.captures++
	n := d.captures
	d.mu.Unlock()

	d.Log.Add("device.capture")
	if d.Hold != nil {
		d.Hold(ctx)
	}
	if d.CaptureErr != nil {
		if err := d.CaptureErr(n); err != nil {
			return nil, err
		}
	}
	now := clock.OrSystem(d.Clock).Now()
	if d.NoLocalFile {
		return artifact.New(now, ""), nil
	}
	path := fmt.Sprintf("capture-%03d.jpg", n)
	if d.Dir != "" {
		path = filepath.Join(d.Dir, path)
		if err := os.WriteFile(path, []byte("frame"), 0o644); err != nil {
			return nil, err
		}
	}
	return artifact.New(now, path), nil
}

func (d *FakeDevice) PruneLocalCache(context.Context) {
	d.mu.Lock()
	d.prunes++
	d.mu.Unlock()
	d.Log.Add("device.prune")
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Captures returns the number of Capture calls.
func (d *FakeDevice) Captures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captures
}

// Prunes returns the number of PruneLocalCache calls.
func (d *FakeDevice) Prunes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prunes
}

// Closed reports whether Close ran.
func (d *FakeDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// FakeStore is an in-memory objectstore.Store keyed by object name.
type FakeStore struct {
	Log    *EventLog
	Bucket string
	Clock  clock.Clock
	// UploadErr, ListErr and DeleteErr inject failures.
	UploadErr error
	ListErr   error
	DeleteErr map[string]error
	// HoldDelete, when set, runs inside Delete after the begin event.
	HoldDelete func(id string)

	mu      sync.Mutex
	objects map[string]objectstore.Object
	deleted []string
	calls   int
}

// NewFakeStore returns a store for bucket.
func NewFakeStore(log *EventLog, bucket string) *FakeStore {
	return &FakeStore{Log: log, Bucket: bucket, objects: map[string]objectstore.Object{}}
}

// Seed inserts objects with the given modification times.
func (s *FakeStore) Seed(objects ...objectstore.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range objects {
		s.objects[obj.ID] = obj
	}
}

func (s *FakeStore) Upload(_ context.Context, localPath, bucket string) (string, error) {
	s.bump()
	s.Log.Add("store.upload.begin %s", filepath.Base(localPath))
	defer s.Log.Add("store.upload.end %s", filepath.Base(localPath))
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	bucket = objectstore.BucketOr(bucket, s.Bucket)
	name := filepath.Base(localPath)
	s.mu.Lock()
	s.objects[name] = objectstore.Object{ID: name, LastModified: clock.OrSystem(s.Clock).Now()}
	s.mu.Unlock()
	return objectstore.RemoteID(bucket, name), nil
}

func (s *FakeStore) Download(_ context.Context, id, destPath, bucket string) error {
	s.bump()
	name := objectstore.ObjectName(id, objectstore.BucketOr(bucket, s.Bucket))
	s.mu.Lock()
	_, ok := s.objects[name]
	s.mu.Unlock()
	if !ok {
		return objectstore.ErrNotFound
	}
	return os.WriteFile(destPath, []byte(name), 0o644)
}

func (s *FakeStore) Delete(_ context.Context, id, bucket string) error {
	s.bump()
	s.Log.Add("store.delete.begin %s", id)
	defer s.Log.Add("store.delete.end %s", id)
	if s.HoldDelete != nil {
		s.HoldDelete(id)
	}
	if err := s.DeleteErr[id]; err != nil {
		return err
	}
	name := objectstore.ObjectName(id, objectstore.BucketOr(bucket, s.Bucket))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; !ok {
		return objectstore.ErrNotFound
	}
	delete(s.objects, name)
	s.deleted = append(s.deleted, name)
	return nil
}

func (s *FakeStore) List(context.Context, string) ([]objectstore.Object, error) {
	s.bump()
	s.Log.Add("store.list")
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]objectstore.Object, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FakeStore) bump() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

// Names returns the stored object names, sorted.
func (s *FakeStore) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deleted returns deleted names in deletion order.
func (s *FakeStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deleted)
}

// Calls returns the total number of capability calls.
func (s *FakeStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Published is one recorded FakeBus publish.
type Published struct {
	Topic   string
	Payload string
	QoS     bus.QoS
}

// FakeBus is a scripted bus.Bus.
type FakeBus struct {
	Log        *EventLog
	Status     bus.ConnectionStatus
	ConnectErr error
	// Silent never answers Connect.
	Silent     bool
	PublishErr func(n int) error

	mu          sync.Mutex
	connects    int
	published   []Published
	disconnects int
}

// ErrFakePublish is a convenient PublishErr result.
var ErrFakePublish = errors.New("fake publish failure")

func (b *FakeBus) Connect(context.Context) <-chan bus.ConnectResult {
	b.mu.Lock()
	b.connects++
	b.mu.Unlock()
	b.Log.Add("bus.connect")
	if b.Silent {
		return make(chan bus.ConnectResult)
	}
	return bus.Result(b.Status, b.ConnectErr)
}

func (b *FakeBus) Publish(_ context.Context, topic string, payload []byte, qos bus.QoS) error {
	b.mu.Lock()
	n := len(b.published) + 1
	b.mu.Unlock()
	b.Log.Add("bus.publish %s", topic)
	if b.PublishErr != nil {
		if err := b.PublishErr(n); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, Published{Topic: topic, Payload: string(payload), QoS: qos})
	return nil
}

func (b *FakeBus) Disconnect() {
	b.mu.Lock()
	b.disconnects++
	b.mu.Unlock()
	b.Log.Add("bus.disconnect")
}

// Published returns a snapshot of successful publishes.
func (b *FakeBus) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.published)
}

// Connects returns the number of Connect calls.
func (b *FakeBus) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Disconnects returns the number of Disconnect calls.
func (b *FakeBus) Disconnects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnects
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(2 * time.Millisecond)
	}
}
