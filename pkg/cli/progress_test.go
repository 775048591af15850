package cli

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSimpleProgressBasic(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewLabeledProgress(buf, "Probing")
	clock := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	progress.now = func() time.Time { return clock }

	progress.Start(4)
	clock = clock.Add(time.Second)
	progress.Update(2)
	progress.Finish()

	output := buf.String()
	if !strings.Contains(output, "Probing: [") {
		t.Errorf("missing label in %q", output)
	}
	if !strings.Contains(output, "50.0% (2/4) 2.0/s") {
		t.Errorf("missing halfway line in %q", output)
	}
	if !strings.Contains(output, "100.0% (4/4)") || !strings.HasSuffix(output, "\n") {
		t.Errorf("missing final line in %q", output)
	}
}

func TestSimpleProgressZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(0)
	progress.Update(0)
	progress.Finish()

	if buf.String() != "\n" {
		t.Errorf("output = %q, want a single newline", buf.String())
	}
}

func TestSimpleProgressClampsOvershoot(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)
	progress.Start(2)
	progress.Update(5)

	if !strings.Contains(buf.String(), "(2/2)") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSimpleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(100)
	progress.Error(fmt.Errorf("test error"))

	output := buf.String()
	if !strings.Contains(output, "Error: test error") {
		t.Errorf("output = %q", output)
	}
}

func TestSimpleProgressConcurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)
	progress.Start(1000)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				progress.Update(int64(i*100 + j))
			}
		}()
	}
	wg.Wait()
	progress.Finish()

	if !strings.Contains(buf.String(), "(1000/1000)") {
		t.Error("expected a final complete line")
	}
}
