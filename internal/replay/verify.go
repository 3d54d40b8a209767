package replay

import (
	"fmt"
	"io"
	"strings"
)

// Verify checks r against the script's expectations.
func Verify(r *Report, e Expect) error {
	var problems []string
	fail := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if e.Marks != nil {
		if len(r.Saved) != len(e.Marks) {
			fail("saved %d marks, want %d", len(r.Saved), len(e.Marks))
		}
		for i := 0; i < len(e.Marks) && i < len(r.Saved); i++ {
			want, got := e.Marks[i], r.Saved[i]
			if !strings.EqualFold(want.Type, string(got.Type)) {
				fail("mark %d is %s, want %s", i, got.Type, strings.ToUpper(want.Type))
			}
			if want.Auto != nil && *want.Auto != got.Automatic {
				fail("mark %d auto=%t, want %t", i, got.Automatic, *want.Auto)
			}
			if want.SiteID != "" && want.SiteID != got.SiteID {
				fail("mark %d site %q, want %q", i, got.SiteID, want.SiteID)
			}
			if want.Inside != nil && *want.Inside != got.InsideGeofence {
				fail("mark %d inside=%t, want %t", i, got.InsideGeofence, *want.Inside)
			}
		}
	}
	if e.Rejections != nil && strings.Join(e.Rejections, ",") != strings.Join(r.Rejections, ",") {
		fail("rejections %v, want %v", r.Rejections, e.Rejections)
	}
	if e.FinalState != "" && !strings.EqualFold(e.FinalState, r.FinalState.String()) {
		fail("final state %s, want %s", r.FinalState, strings.ToUpper(e.FinalState))
	}
	if e.AutoCloses != nil && *e.AutoCloses != r.AutoCloses {
		fail("%d automatic closures, want %d", r.AutoCloses, *e.AutoCloses)
	}
	if e.Suppressed != nil && *e.Suppressed != r.Suppressed {
		fail("%d suppressed closures, want %d", r.Suppressed, *e.Suppressed)
	}
	if e.FailedMarks != nil && *e.FailedMarks != r.FailedMarks {
		fail("%d failed marks, want %d", r.FailedMarks, *e.FailedMarks)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrExpectation, strings.Join(problems, "; "))
	}
	return nil
}

// Print writes a human-readable summary of r, with the trace when verbose.
func Print(w io.Writer, r *Report, verbose bool) {
	fmt.Fprintf(w, "== %s\n", r.Name)
	if verbose {
		for _, line := range r.Trace {
			fmt.Fprintf(w, "   %s\n", line)
		}
	}
	fmt.Fprintf(w, "   saved=%d attempts=%d failed=%d auto=%d suppressed=%d deferred=%d dropped=%d rejected=%v final=%s\n",
		len(r.Saved), r.Attempts, r.FailedMarks, r.AutoCloses, r.Suppressed, r.Deferred, r.Dropped, r.Rejections, r.FinalState)
}
