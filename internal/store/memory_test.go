package store_test

import (
	"testing"

	"github.com/nextfix-go/nextfix/internal/store"
)

func TestNewStartsCountersAtOne(t *testing.T) {
	t.Parallel()

	m := store.New()

	sender, err := m.NextSenderMsgSeqNum()
	if err != nil {
		t.Fatalf("NextSenderMsgSeqNum() error = %v", err)
	}
	if sender != 1 {
		t.Errorf("NextSenderMsgSeqNum() = %d, want 1", sender)
	}

	target, err := m.NextTargetMsgSeqNum()
	if err != nil {
		t.Fatalf("NextTargetMsgSeqNum() error = %v", err)
	}
	if target != 1 {
		t.Errorf("NextTargetMsgSeqNum() = %d, want 1", target)
	}
}

func TestIncrAdvancesIndependently(t *testing.T) {
	t.Parallel()

	m := store.New()

	if err := m.IncrNextSenderMsgSeqNum(); err != nil {
		t.Fatalf("IncrNextSenderMsgSeqNum() error = %v", err)
	}
	if err := m.IncrNextSenderMsgSeqNum(); err != nil {
		t.Fatalf("IncrNextSenderMsgSeqNum() error = %v", err)
	}

	sender, _ := m.NextSenderMsgSeqNum()
	target, _ := m.NextTargetMsgSeqNum()
	if sender != 3 {
		t.Errorf("NextSenderMsgSeqNum() = %d, want 3", sender)
	}
	if target != 1 {
		t.Errorf("NextTargetMsgSeqNum() = %d, want 1 (unaffected by sender increments)", target)
	}
}

func TestSetAndGetRoundTrip(t *testing.T) {
	t.Parallel()

	m := store.New()
	if err := m.Set(1, []byte("35=A")); err != nil {
		t.Fatalf("Set(1) error = %v", err)
	}
	if err := m.Set(3, []byte("35=D")); err != nil {
		t.Fatalf("Set(3) error = %v", err)
	}
	// seq 2 is intentionally left unset, simulating a never-persisted
	// administrative message.

	raws, err := m.Get(1, 3)
	if err != nil {
		t.Fatalf("Get(1,3) error = %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("Get(1,3) returned %d entries, want 2 (seq 2 has no stored bytes)", len(raws))
	}
	if string(raws[0]) != "35=A" || string(raws[1]) != "35=D" {
		t.Errorf("Get(1,3) = %q, want [35=A 35=D]", raws)
	}
}

func TestSetCopiesInput(t *testing.T) {
	t.Parallel()

	m := store.New()
	raw := []byte("35=A")
	if err := m.Set(1, raw); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	raw[0] = 'X'

	got, err := m.Get(1, 1)
	if err != nil {
		t.Fatalf("Get(1,1) error = %v", err)
	}
	if string(got[0]) != "35=A" {
		t.Errorf("Get(1,1) = %q after mutating the caller's slice, want unaffected copy", got[0])
	}
}

func TestResetClearsCountersAndMessages(t *testing.T) {
	t.Parallel()

	m := store.New()
	if err := m.SetNextSenderMsgSeqNum(50); err != nil {
		t.Fatalf("SetNextSenderMsgSeqNum() error = %v", err)
	}
	if err := m.SetNextTargetMsgSeqNum(50); err != nil {
		t.Fatalf("SetNextTargetMsgSeqNum() error = %v", err)
	}
	if err := m.Set(49, []byte("35=0")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := m.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	sender, _ := m.NextSenderMsgSeqNum()
	target, _ := m.NextTargetMsgSeqNum()
	if sender != 1 || target != 1 {
		t.Errorf("counters after Reset() = %d/%d, want 1/1", sender, target)
	}

	raws, err := m.Get(49, 49)
	if err != nil {
		t.Fatalf("Get(49,49) error = %v", err)
	}
	if len(raws) != 0 {
		t.Errorf("Get(49,49) returned %d entries after Reset(), want 0", len(raws))
	}
}

func TestCreationTimeUpdatesOnReset(t *testing.T) {
	t.Parallel()

	m := store.New()
	before, err := m.CreationTime()
	if err != nil {
		t.Fatalf("CreationTime() error = %v", err)
	}

	if err := m.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	after, err := m.CreationTime()
	if err != nil {
		t.Fatalf("CreationTime() error = %v", err)
	}
	if after.Before(before) {
		t.Errorf("CreationTime() after Reset() = %v, want >= %v", after, before)
	}
}
