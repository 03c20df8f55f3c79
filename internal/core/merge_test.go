package core

import (
	"reflect"
	"testing"
)

func TestMerge(t *testing.T) {
	primary := NewTable("State", "Qty")
	primary.AppendRow(TextValue("TX"), NumberValue(1))
	primary.AppendRow(TextValue("CA"), NumberValue(2))
	primary.AppendRow(TextValue("NY"), NumberValue(3))

	secondary := NewTable("Qty", "Region Code")
	secondary.AppendRow(NumberValue(9), TextValue("S"))
	secondary.AppendRow(NumberValue(8), TextValue("W"))

	got := Merge(primary, secondary)

	if want := []string{"State", "Qty", "Region Code"}; !reflect.DeepEqual(got.Fields, want) {
		t.Fatalf("Fields = %v, want %v", got.Fields, want)
	}
	if got.Len() != 3 {
		t.Fatalf("Len = %d, want 3", got.Len())
	}

	// Primary values win on the shared field.
	if f, _ := got.Rows[0][1].Float(); f != 1 {
		t.Errorf("Qty[0] = %v, want 1", f)
	}
	if got.Rows[1][2].Str != "W" {
		t.Errorf("Region Code[1] = %v, want W", got.Rows[1][2])
	}
	// Shorter secondary is padded with nulls.
	if !got.Rows[2][2].IsNull() {
		t.Errorf("Region Code[2] = %v, want null", got.Rows[2][2])
	}
}

func TestMerge_LongerSecondary(t *testing.T) {
	primary := NewTable("State")
	primary.AppendRow(TextValue("TX"))

	secondary := NewTable("Dealer")
	secondary.AppendRow(TextValue("Acme"))
	secondary.AppendRow(TextValue("Bolt"))

	got := Merge(primary, secondary)
	if got.Len() != 2 {
		t.Fatalf("Len = %d, want 2", got.Len())
	}
	if !got.Rows[1][0].IsNull() {
		t.Errorf("State[1] = %v, want null", got.Rows[1][0])
	}
	if got.Rows[1][1].Str != "Bolt" {
		t.Errorf("Dealer[1] = %v, want Bolt", got.Rows[1][1])
	}
}

func TestMerge_NilSecondary(t *testing.T) {
	primary := NewTable("State")
	primary.AppendRow(TextValue("TX"))

	got := Merge(primary, nil)
	if !reflect.DeepEqual(got, primary) {
		t.Errorf("Merge(primary, nil) = %v, want copy of primary", got)
	}
	got.Rows[0][0] = TextValue("CA")
	if primary.Rows[0][0].Str != "TX" {
		t.Error("result shares rows with primary")
	}
}

func TestNewFields(t *testing.T) {
	primary := NewTable("State", "Qty")
	secondary := NewTable("Qty", "Notes", "State", "Owner")

	if got, want := NewFields(primary, secondary), []string{"Notes", "Owner"}; !reflect.DeepEqual(got, want) {
		t.Errorf("NewFields = %v, want %v", got, want)
	}
}
