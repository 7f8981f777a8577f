package cloud

import (
	"strings"
	"testing"

	"github.com/ramparte/deployotron/internal/ops"
)

func TestVersionOf(t *testing.T) {
	testCases := []struct {
		tag      string
		expected string
	}{
		{"widget:abcd1234", "abcd1234"},
		{"widget", "latest"},
		{"registry.example.com/widget:v2", "v2"},
	}

	for _, tc := range testCases {
		if got := versionOf(tc.tag); got != tc.expected {
			t.Errorf("versionOf(%q) = %q, expected %q", tc.tag, got, tc.expected)
		}
	}
}

func TestDrainStream(t *testing.T) {
	t.Run("collects output", func(t *testing.T) {
		stream := `{"stream":"Step 1/4 : FROM alpine"}
{"stream":"Step 2/4 : COPY . ."}
{"status":"Pushed"}
`
		out, err := drainStream(strings.NewReader(stream))
		if err != nil {
			t.Fatalf("drainStream error: %v", err)
		}
		if !strings.Contains(out, "Step 1/4") || !strings.Contains(out, "Pushed") {
			t.Errorf("output missing lines: %q", out)
		}
	})

	t.Run("surfaces embedded error", func(t *testing.T) {
		stream := `{"stream":"Step 1/4 : FROM alpine"}
{"errorDetail":{"message":"executor failed running"},"error":"executor failed running"}
`
		out, err := drainStream(strings.NewReader(stream))
		if err == nil {
			t.Fatal("expected error from stream")
		}
		if !strings.Contains(err.Error(), "executor failed") {
			t.Errorf("error = %v", err)
		}
		if !strings.Contains(out, "Step 1/4") {
			t.Errorf("output lost on error: %q", out)
		}
	})

	t.Run("tail is bounded", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < buildOutputTail*3; i++ {
			b.WriteString(`{"stream":"line"}` + "\n")
		}
		out, err := drainStream(strings.NewReader(b.String()))
		if err != nil {
			t.Fatalf("drainStream error: %v", err)
		}
		if got := len(strings.Split(out, "\n")); got > buildOutputTail {
			t.Errorf("tail has %d lines, expected at most %d", got, buildOutputTail)
		}
	})
}

func TestGenerateDockerfile(t *testing.T) {
	for _, framework := range []ops.Framework{
		ops.FrameworkNextJS, ops.FrameworkReact, ops.FrameworkVue, ops.FrameworkAngular,
		ops.FrameworkNode, ops.FrameworkPython, ops.FrameworkRuby,
		ops.FrameworkGo, ops.FrameworkRust, ops.FrameworkOther,
	} {
		t.Run(string(framework), func(t *testing.T) {
			df := GenerateDockerfile(framework)
			if !strings.HasPrefix(df, "FROM ") {
				t.Errorf("Dockerfile does not start with FROM:\n%s", df)
			}
			if !strings.Contains(df, "EXPOSE ") {
				t.Errorf("Dockerfile missing EXPOSE:\n%s", df)
			}
		})
	}
}
