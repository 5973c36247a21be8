package repo

import (
	"context"
	"errors"
	"testing"
)

func TestGroup_CreateGetAndDuplicateCode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	g, err := CreateGroup(ctx, db, "ABC123")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.ID == 0 || g.PairingCode == nil || *g.PairingCode != "ABC123" {
		t.Fatalf("unexpected group: %+v", g)
	}
	if _, err := CreateGroup(ctx, db, "ABC123"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for active code, got %v", err)
	}

	got, err := GetGroup(ctx, db, g.ID)
	if err != nil || got.ID != g.ID {
		t.Fatalf("GetGroup: %+v err=%v", got, err)
	}
	if _, err := GetGroup(ctx, db, g.ID+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumePairingCode_OnlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	g, err := CreateGroup(ctx, db, "ZZZ999")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := ConsumePairingCode(ctx, db, g.ID, "WRONG1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong code: expected ErrNotFound, got %v", err)
	}
	if err := ConsumePairingCode(ctx, db, g.ID, "ZZZ999"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := ConsumePairingCode(ctx, db, g.ID, "ZZZ999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume: expected ErrNotFound, got %v", err)
	}

	got, err := GetGroup(ctx, db, g.ID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if got.PairingCode != nil {
		t.Fatalf("pairing code should be cleared, got %q", *got.PairingCode)
	}

	// A consumed code becomes available to new groups.
	if _, err := CreateGroup(ctx, db, "ZZZ999"); err != nil {
		t.Fatalf("reuse of consumed code: %v", err)
	}
}

func TestDevices_CreateCountListGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	g := seedGroup(t, db)

	n, err := CountDevices(ctx, db, g.ID)
	if err != nil || n != 0 {
		t.Fatalf("CountDevices empty: %d err=%v", n, err)
	}

	first, err := CreateDevice(ctx, db, g.ID, "phone", "hash-1", true)
	if err != nil {
		t.Fatalf("CreateDevice first: %v", err)
	}
	second, err := CreateDevice(ctx, db, g.ID, "tablet", "hash-2", false)
	if err != nil {
		t.Fatalf("CreateDevice second: %v", err)
	}
	if first.ID == 0 || second.ID <= first.ID {
		t.Fatalf("ids not assigned in order: %d, %d", first.ID, second.ID)
	}

	n, err = CountDevices(ctx, db, g.ID)
	if err != nil || n != 2 {
		t.Fatalf("CountDevices: %d err=%v", n, err)
	}

	list, err := ListDevices(ctx, db, g.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListDevices: len=%d err=%v", len(list), err)
	}
	if list[0].Name != "phone" || !list[0].Authorized || list[1].Authorized {
		t.Fatalf("unexpected devices: %+v", list)
	}

	got, err := GetDevice(ctx, db, second.ID)
	if err != nil || got.SecretHash != "hash-2" || got.GroupID != g.ID {
		t.Fatalf("GetDevice: %+v err=%v", got, err)
	}
	if _, err := GetDevice(ctx, db, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDevice_UnknownGroupViolatesFK(t *testing.T) {
	db := newTestDB(t)
	if _, err := CreateDevice(context.Background(), db, 4242, "ghost", "h", false); err == nil {
		t.Fatalf("expected foreign key error for unknown group")
	}
}
