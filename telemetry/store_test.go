package telemetry

import "testing"

func fp(v float64) *float64 { return &v }

func TestInMemoryStoreUpsertAndReadAll(t *testing.T) {
	store := NewInMemoryStore()

	err := store.Upsert([]Reading{
		{Source: "pour_temp", Value: fp(22.5)},
		{Source: "wind_speed", Value: nil},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	readings, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if v := readings["pour_temp"]; v == nil || *v != 22.5 {
		t.Errorf("pour_temp = %v, want 22.5", v)
	}
	if v, present := readings["wind_speed"]; !present || v != nil {
		t.Errorf("wind_speed = %v (present=%v), want known source with null value", v, present)
	}

	// A second upsert replaces the previous value, including null-ing it.
	err = store.Upsert([]Reading{
		{Source: "pour_temp", Value: nil},
		{Source: "wind_speed", Value: fp(12)},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	readings, _ = store.ReadAll()
	if readings["pour_temp"] != nil {
		t.Errorf("pour_temp = %v, want nulled out", readings["pour_temp"])
	}
	if v := readings["wind_speed"]; v == nil || *v != 12 {
		t.Errorf("wind_speed = %v, want 12", v)
	}
}

func TestInMemoryStoreList(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.Upsert([]Reading{{Source: "pour_temp", Value: fp(22.5)}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List returned %d readings, want 1", len(list))
	}
	if list[0].Source != "pour_temp" || list[0].UpdatedAt.IsZero() {
		t.Errorf("reading = %+v, want pour_temp with an update timestamp", list[0])
	}
}
