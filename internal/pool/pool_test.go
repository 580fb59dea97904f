package pool

import (
	"bytes"
	"sync"
	"testing"
)

func TestGetBufferIsEmpty(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString(`{"index":{}}` + "\n")
	PutBuffer(buf)

	buf2 := GetBuffer()
	if buf2.Len() != 0 {
		t.Errorf("Expected empty buffer, got %d bytes", buf2.Len())
	}
	PutBuffer(buf2)
}

func TestPutBufferDropsOversized(t *testing.T) {
	before := GetStats().Dropped

	big := bytes.NewBuffer(make([]byte, 0, MaxPooledSize+1))
	PutBuffer(big)
	PutBuffer(nil)

	if got := GetStats().Dropped - before; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestStatsCountGets(t *testing.T) {
	before := GetStats()
	for i := 0; i < 3; i++ {
		PutBuffer(GetBuffer())
	}
	after := GetStats()
	if after.Gets-before.Gets != 3 {
		t.Errorf("gets = %d, want 3", after.Gets-before.Gets)
	}
	if after.Allocs < before.Allocs {
		t.Error("allocs must not decrease")
	}
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := GetBuffer()
				buf.WriteString("record\n")
				if buf.String() != "record\n" {
					t.Errorf("unexpected buffer content %q", buf.String())
				}
				PutBuffer(buf)
			}
		}()
	}
	wg.Wait()
}
