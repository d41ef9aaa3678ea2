package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bashed/internal/record"
)

func TestScenarioFiles(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := New(WithWorkers(2)).Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRunWithGolden_RelevListMerge(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/relev-listmerge.yaml")
	require.NoError(t, err)

	result := RunWithGolden(t, scenario)
	require.NotNil(t, result.Outcome)
	assert.Len(t, result.Outcome.Records, 1)
}

func TestRunIsDeterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/formlist-union.yaml")
	require.NoError(t, err)

	first, err := New(WithWorkers(1)).Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := New(WithWorkers(8)).Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := Snapshot(first.Outcome)
	require.NoError(t, err)
	b, err := Snapshot(second.Outcome)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

const minimal = `
name: minimal
description: One master and one override
plugins:
  - name: Base.esm
    master: true
    records:
      - type: GLOB
        formid: "00000800"
        subrecords:
          - {sig: EDID, z: Rate}
          - {sig: FLTV, f32: 1}
  - name: ModA.esp
    masters: [Base.esm]
    records:
      - type: GLOB
        formid: "00000800"
        subrecords:
          - {sig: EDID, z: Rate}
          - {sig: FLTV, f32: 2}
`

func TestFailedExpectationsAreReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimal + `
expect:
  masters: [Other.esm]
  stats: {emitted: 5, bogus: 1}
  records:
    - type: GLOB
      formid: "00000800"
      subrecords:
        - {sig: EDID, z: Rate}
  conflicts:
    - formid: "00000800"
      tag: FLTV
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	all := strings.Join(result.Errors, "\n")
	assert.Contains(t, all, "stats: unknown counter \"bogus\"")
	assert.Contains(t, all, "stats.emitted: expected 5, got 0")
	assert.Contains(t, all, "record GLOB 00000800: expected present, got absent")
	assert.Contains(t, all, "conflict 00000800 FLTV: expected reported, got not reported")
}

func TestUnexpectedBuildFailure(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: broken
description: Master missing
plugins:
  - name: ModA.esp
    masters: [Base.esm]
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "build failed")
	assert.Contains(t, result.Outcome.Error, "missing master")
}

func TestExpectedErrorNotRaised(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimal + `
expect:
  error: NO_POLICY
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "got success")
}

func TestSchemaOverlay(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: overlay
description: A user table binds KYWD colors to a tag
schema: |
  policies: KYWD: [{tag: "Colors", kind: "override", subrecords: ["CNAM"]}]
policies:
  strict: true
plugins:
  - name: Base.esm
    master: true
    records:
      - type: KYWD
        formid: "00000800"
        subrecords:
          - {sig: EDID, z: Keyword}
          - {sig: CNAM, u32: 1}
  - name: ModA.esp
    masters: [Base.esm]
    records:
      - type: KYWD
        formid: "00000800"
        subrecords:
          - {sig: EDID, z: Keyword}
          - {sig: CNAM, u32: 2}
  - name: ModB.esp
    masters: [Base.esm]
    records:
      - type: KYWD
        formid: "00000800"
        subrecords:
          - {sig: EDID, z: Keyword}
          - {sig: CNAM, u32: 1}
tags:
  ModA.esp: [Colors]
expect:
  masters: [Base.esm]
  records:
    - type: KYWD
      formid: "00000800"
      subrecords:
        - {sig: EDID, z: Keyword}
        - {sig: CNAM, u32: 2}
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestBadSchemaIsAnError(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimal + "schema: \"policies: {\"\n"))
	require.NoError(t, err)

	_, err = Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario schema")
}

func TestParseScenarioValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: y\nplugin: []\n", "field plugin not found"},
		{"missing name", "description: y\nplugins: [{name: A.esp}]\n", "name is required"},
		{"missing description", "name: x\nplugins: [{name: A.esp}]\n", "description is required"},
		{"no plugins", "name: x\ndescription: y\n", "plugins list is required"},
		{"duplicate plugin", "name: x\ndescription: y\nplugins: [{name: A.esp}, {name: a.ESP}]\n", "duplicate plugin"},
		{"raw and records", "name: x\ndescription: y\nplugins: [{name: A.esp, raw: '00', records: [{type: GLOB}]}]\n", "exclusive"},
		{"two values", "name: x\ndescription: y\nplugins: [{name: A.esp, records: [{type: GLOB, subrecords: [{sig: FLTV, u8: 1, u16: 2}]}]}]\n", "more than one value"},
		{"inline and parts", "name: x\ndescription: y\nplugins: [{name: A.esp, records: [{type: GLOB, subrecords: [{sig: FLTV, u8: 1, parts: [{u8: 2}]}]}]}]\n", "inline value and parts"},
		{"bad signature", "name: x\ndescription: y\nplugins: [{name: A.esp, records: [{type: GLOBAL}]}]\n", "must be exactly 4 bytes"},
		{"missing conflict tag", "name: x\ndescription: y\nplugins: [{name: A.esp}]\nexpect: {conflicts: [{formid: '800'}]}\n", "tag is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDataBytes(t *testing.T) {
	z := "Café"
	u16 := uint16(0x0102)
	i16 := int16(-1)
	i32 := int32(-2)
	f32 := float32(1)
	fid := record.FormID(0x01000800)

	tests := []struct {
		name string
		data Data
		want []byte
	}{
		{"empty", Data{}, nil},
		{"zstring", Data{Z: &z}, []byte{'C', 'a', 'f', 0xE9, 0}},
		{"u16", Data{U16: &u16}, []byte{0x02, 0x01}},
		{"i16", Data{I16: &i16}, []byte{0xFF, 0xFF}},
		{"i32", Data{I32: &i32}, []byte{0xFE, 0xFF, 0xFF, 0xFF}},
		{"f32", Data{F32: &f32}, []byte{0x00, 0x00, 0x80, 0x3F}},
		{"formid", Data{FormID: &fid}, []byte{0x00, 0x08, 0x00, 0x01}},
		{"hex", Data{Hex: "de ad"}, []byte{0xDE, 0xAD}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.data.Bytes()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
