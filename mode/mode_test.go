package mode

import "testing"

func TestParallelString(t *testing.T) {
	cases := map[Parallel]string{
		None:       "none",
		Sequential: "sequential",
		Task:       "task",
		Pipeline:   "pipeline",
		Parallel(99): "unknown",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("Parallel(%d).String() = %q, want %q", p, got, want)
		}
	}
}

func TestUpdateFlagString(t *testing.T) {
	cases := map[UpdateFlag]string{
		Complete:       "complete",
		Terminate:      "terminate",
		Error:          "error",
		UpdateFlag(99): "unknown",
	}
	for f, want := range cases {
		if got := f.String(); got != want {
			t.Errorf("UpdateFlag(%d).String() = %q, want %q", f, got, want)
		}
	}
}
