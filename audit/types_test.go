package audit_test

import (
	"testing"

	"prakashmadai10/gisaudit/audit"
)

func TestLayerRecordKey_NormalizesNilSublayer(t *testing.T) {
	withNil := audit.LayerRecord{Source: audit.SourceOnline, ItemID: "abc"}
	withZero := audit.LayerRecord{Source: audit.SourceOnline, ItemID: "abc", SublayerID: audit.Int64(0)}

	if withNil.Key() != withZero.Key() {
		t.Errorf("nil and zero sublayer ids should produce the same key: %v vs %v",
			withNil.Key(), withZero.Key())
	}

	withOne := audit.LayerRecord{Source: audit.SourceOnline, ItemID: "abc", SublayerID: audit.Int64(1)}
	if withNil.Key() == withOne.Key() {
		t.Errorf("different sublayer ids collided: %v", withOne.Key())
	}
}
