package redisbus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/forPelevin/scenecut/internal/types"
)

func TestEncodeDecode(t *testing.T) {
	path := "/out/scene_002.mp4"
	raw, err := Encode(TypeSceneResult, "job-1", types.SceneResult{JobID: "job-1", SceneID: 2, Success: true, FootagePath: &path})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeSceneResult || env.JobID != "job-1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	var res types.SceneResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("data: %v", err)
	}
	if res.SceneID != 2 || res.FootagePath == nil || *res.FootagePath != path {
		t.Fatalf("unexpected data %+v", res)
	}
}

func TestDecode_RejectsUntyped(t *testing.T) {
	if _, err := Decode([]byte(`{"job_id":"x","data":{}}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for bad json")
	}
}

func TestNew_RequiresAddress(t *testing.T) {
	if _, err := New(context.Background(), "  ", "", nil); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestNew_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(ctx, "127.0.0.1:1", "", nil); err == nil {
		t.Fatalf("expected ping error")
	}
}
