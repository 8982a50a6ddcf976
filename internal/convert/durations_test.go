package convert_test

import (
	"context"
	"errors"
	"testing"

	"metapipe/internal/assets"
	"metapipe/internal/convert"
	"metapipe/internal/testsupport"
)

func TestDurationsKeyedByBasename(t *testing.T) {
	sounds := []assets.Asset{
		assets.NewAsset("/src", "music/theme.wav", assets.Sound),
		assets.NewAsset("/src", "sfx/jump.wav", assets.Sound),
	}
	prober := &testsupport.FakeProber{Durations: map[string]string{"theme.wav": "92.5", "jump.wav": "0.75"}}

	got, err := convert.Durations(context.Background(), prober, sounds, -1, nil)
	if err != nil {
		t.Fatalf("Durations: %v", err)
	}
	if got["music/theme"] != 92.5 || got["sfx/jump"] != 0.75 || len(got) != 2 {
		t.Fatalf("durations = %v", got)
	}
}

func TestDurationsFailureDoesNotBlockOthers(t *testing.T) {
	sounds := []assets.Asset{
		assets.NewAsset("/src", "ok.wav", assets.Sound),
		assets.NewAsset("/src", "broken.wav", assets.Sound),
	}
	prober := &testsupport.FakeProber{
		Durations: map[string]string{"ok.wav": "2"},
		Fail:      map[string]error{"broken.wav": errors.New("moov atom not found")},
	}

	got, err := convert.Durations(context.Background(), prober, sounds, 0, nil)
	if err == nil {
		t.Fatal("expected probe failure")
	}
	if got["ok"] != 2 {
		t.Fatalf("healthy asset missing: %v", got)
	}
	if _, ok := got["broken"]; ok {
		t.Fatal("failed asset must not have a duration")
	}
	if prober.Calls() != 2 {
		t.Fatalf("expected both assets probed, got %d", prober.Calls())
	}
}

func TestDurationsEmpty(t *testing.T) {
	got, err := convert.Durations(context.Background(), nil, nil, -1, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("Durations(nil) = %v, %v", got, err)
	}
}
