package service

import "testing"

func TestTranscriptAccumulator(t *testing.T) {
	acc := NewTranscriptAccumulator()

	steps := []struct {
		fragment string
		final    bool
		want     string
	}{
		{"今天", false, "今天"},
		{"今天天气", false, "今天天气"},
		{"今天天气很好。", true, "今天天气很好。"},
		{"我去", false, "今天天气很好。我去"},
		{"我去跑步", false, "今天天气很好。我去跑步"},
		{"我去跑步了。", true, "今天天气很好。我去跑步了。"},
	}
	for i, s := range steps {
		if got := acc.Apply(s.fragment, s.final); got != s.want {
			t.Fatalf("step %d: got=%q want=%q", i, got, s.want)
		}
	}

	acc.Apply("还有", false)
	if acc.Final() != "今天天气很好。我去跑步了。" {
		t.Fatalf("final=%q", acc.Final())
	}
	acc.Reset()
	if acc.Text() != "" {
		t.Fatalf("text after reset=%q", acc.Text())
	}
}
