//go:build integration

package itest

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

type fixtureRundown struct {
	Items []fixtureItem `json:"items"`
}

type fixtureItem struct {
	Kind      string        `json:"kind"`
	Clip      *fixtureClip  `json:"clip,omitempty"`
	Selection []int         `json:"selection,omitempty"`
}

type fixtureClip struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// TestE2E drives the built hapctl binary against a rundown of two
// synthesized clips and checks that it exits 0 and leaves a run directory
// under --out.
func TestE2E(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Fatalf("OPENAI_API_KEY is required for itest")
	}

	repoRoot := mustRepoRoot(t)
	tmp := t.TempDir()

	clip1 := filepath.Join(tmp, "clip1.mp4")
	clip2 := filepath.Join(tmp, "clip2.mp4")
	buildSpeechClip(t, clip1, "Here is the key idea. Step one: do this.")
	buildSpeechClip(t, clip2, "Step two: measure the results. This is important.")

	rd := fixtureRundown{Items: []fixtureItem{
		{Kind: "play", Clip: &fixtureClip{ID: "c1", Source: clip1}, Selection: []int{0, 1}},
		{Kind: "play", Clip: &fixtureClip{ID: "c2", Source: clip2}, Selection: []int{0, 1}},
	}}
	rundownPath := filepath.Join(tmp, "rundown.json")
	b, err := json.Marshal(rd)
	if err != nil {
		t.Fatalf("marshal rundown fixture: %v", err)
	}
	if err := os.WriteFile(rundownPath, b, 0o644); err != nil {
		t.Fatalf("write rundown fixture: %v", err)
	}

	outDir := filepath.Join(tmp, "out")

	res := runCLI(t, repoRoot, []string{rundownPath, "--out", outDir, "--transitions", tmp}, map[string]string{
		"OPENAI_API_KEY": os.Getenv("OPENAI_API_KEY"),
	})
	if res.exitCode != 0 {
		t.Fatalf("hapctl exited %d\noutput:\n%s", res.exitCode, res.output)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read out dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected at least one run directory under %s", outDir)
	}
}

func buildSpeechClip(t *testing.T, out, text string) {
	t.Helper()

	wav := out + ".wav"
	if b, err := exec.Command("espeak-ng", "-w", wav, text).CombinedOutput(); err != nil {
		t.Fatalf("espeak-ng failed: %v\n%s", err, string(b))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ff := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "color=c=black:s=640x360:d=6",
		"-i", wav,
		"-shortest",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		out,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
}
