package model

import "testing"

func TestConfigValidate(t *testing.T) {

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"upper bound inclusive", Config{BoxThreshold: 1, NMSThreshold: 1}, false},
		{"zero confidence", Config{BoxThreshold: 0, NMSThreshold: 0.45}, true},
		{"confidence above one", Config{BoxThreshold: 1.1, NMSThreshold: 0.45}, true},
		{"negative confidence", Config{BoxThreshold: -0.5, NMSThreshold: 0.45}, true},
		{"zero nms", Config{BoxThreshold: 0.5, NMSThreshold: 0}, true},
		{"nms above one", Config{BoxThreshold: 0.5, NMSThreshold: 2}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			err := tc.cfg.validate()

			if tc.wantErr && err == nil {
				t.Error("expected error, got none")
			}

			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {

	cfg := DefaultConfig()

	if cfg.BoxThreshold != 0.5 {
		t.Errorf("confidence default: got %f, want 0.5", cfg.BoxThreshold)
	}

	if cfg.NMSThreshold != 0.45 {
		t.Errorf("NMS default: got %f, want 0.45", cfg.NMSThreshold)
	}
}

func TestNewRegistrySchemes(t *testing.T) {

	r := NewRegistry(DefaultConfig())

	schemes := r.Schemes()

	if len(schemes) != 1 || schemes[0] != YOLOScheme {
		t.Errorf("model schemes: got %v, want [%s]", schemes, YOLOScheme)
	}
}

func TestRegistryRejectsBadThresholds(t *testing.T) {

	r := NewRegistry(Config{BoxThreshold: 2, NMSThreshold: 0.45})

	if _, err := r.Open("yolo:///nonexistent.onnx"); err == nil {
		t.Error("expected threshold validation error")
	}
}
