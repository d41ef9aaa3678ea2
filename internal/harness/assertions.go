package harness

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/bashed/internal/record"
)

// AssertionError is one expectation a scenario did not meet.
type AssertionError struct {
	Check    string // which expectation failed
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Check, e.Expected, e.Actual)
}

func fail(result *Result, check string, expected, actual any) {
	result.AddError((&AssertionError{Check: check, Expected: fmt.Sprint(expected), Actual: fmt.Sprint(actual)}).Error())
}

// check compares an outcome against the expectations and records every
// mismatch on result.
func check(expect Expect, o *Outcome, result *Result) {
	switch {
	case expect.Error != "" && o.Error == "":
		fail(result, "error", fmt.Sprintf("failure containing %q", expect.Error), "success")
	case expect.Error != "" && !strings.Contains(o.Error, expect.Error):
		fail(result, "error", fmt.Sprintf("failure containing %q", expect.Error), o.Error)
	case expect.Error == "" && o.Error != "":
		result.AddErrorf("build failed: %s", o.Error)
	}

	if expect.Order != nil && !slices.Equal(expect.Order, o.Order) {
		fail(result, "order", expect.Order, o.Order)
	}
	if expect.Skipped != nil && !slices.Equal(expect.Skipped, o.Skipped) {
		fail(result, "skipped", expect.Skipped, o.Skipped)
	}
	if o.Error != "" {
		return
	}

	if expect.Masters != nil && !slices.Equal(expect.Masters, o.Masters) {
		fail(result, "masters", expect.Masters, o.Masters)
	}
	checkStats(expect.Stats, o, result)
	checkRecords(expect, o, result)
	checkConflicts(expect.Conflicts, o, result)
}

func checkStats(want map[string]int, o *Outcome, result *Result) {
	if len(want) == 0 {
		return
	}
	data, err := json.Marshal(o.Stats)
	if err != nil {
		result.AddErrorf("stats: %v", err)
		return
	}
	var got map[string]int
	if err := json.Unmarshal(data, &got); err != nil {
		result.AddErrorf("stats: %v", err)
		return
	}
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := got[k]
		if !ok {
			result.AddErrorf("stats: unknown counter %q", k)
			continue
		}
		if v != want[k] {
			fail(result, "stats."+k, want[k], v)
		}
	}
}

func checkRecords(expect Expect, o *Outcome, result *Result) {
	find := func(fid record.FormID) (OutcomeRecord, bool) {
		i := slices.IndexFunc(o.Records, func(r OutcomeRecord) bool { return r.FormID == fid })
		if i < 0 {
			return OutcomeRecord{}, false
		}
		return o.Records[i], true
	}

	for _, want := range expect.Records {
		name := fmt.Sprintf("record %s %s", want.Type, want.FormID)
		got, ok := find(want.FormID)
		if !ok {
			fail(result, name, "present", "absent")
			continue
		}
		if got.Type != want.Type {
			fail(result, name+" type", want.Type, got.Type)
			continue
		}
		lines := make([]string, len(want.Subrecords))
		for i, s := range want.Subrecords {
			data, _ := s.Bytes() // validated on load
			lines[i] = subrecordLine(s.Sig, data)
		}
		if !slices.Equal(lines, got.Subrecords) {
			fail(result, name+" subrecords", lines, got.Subrecords)
		}
	}
	for _, fid := range expect.Absent {
		if got, ok := find(fid); ok {
			fail(result, "record "+fid.String(), "absent", got.Type)
		}
	}
}

func checkConflicts(want []ExpectConflict, o *Outcome, result *Result) {
	for _, w := range want {
		name := fmt.Sprintf("conflict %s %s", w.FormID, w.Tag)
		i := slices.IndexFunc(o.Conflicts, func(c OutcomeConflict) bool { return c.FormID == w.FormID && c.Tag == w.Tag })
		if i < 0 {
			fail(result, name, "reported", "not reported")
			continue
		}
		if w.Plugins != nil && !slices.Equal(w.Plugins, o.Conflicts[i].Plugins) {
			fail(result, name+" plugins", w.Plugins, o.Conflicts[i].Plugins)
		}
	}
}
