package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKeepsUnknownKeys(t *testing.T) {
	in := `{
		"patient_name": "DOE, JANE",
		"cleaned_total_charge": 150.5,
		"source_model": "v2",
		"line_items": [{"cpt": "99213", "cleaned_charge": null, "ndc": ["a", "b"]}]
	}`
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(in), &rec))

	assert.Equal(t, "DOE, JANE", rec.PatientName)
	assert.Equal(t, Amount("150.5"), rec.CleanedTotalCharge)
	require.Len(t, rec.LineItems, 1)
	assert.True(t, rec.LineItems[0].CleanedCharge.IsBlank())
	assert.JSONEq(t, `"v2"`, string(rec.Extra["source_model"]))
	assert.JSONEq(t, `["a","b"]`, string(rec.LineItems[0].Extra["ndc"]))

	out, err := rec.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"source_model": "v2"`)
	assert.Contains(t, string(out), `"cleaned_total_charge": "150.5"`)
	assert.Equal(t, byte('\n'), out[len(out)-1])
}

func TestEncodeIsStable(t *testing.T) {
	rec := Record{PatientName: "X", Extra: map[string]json.RawMessage{"aaa": json.RawMessage(`1`)}}
	out, err := rec.Encode()
	require.NoError(t, err)

	want := `{
  "aaa": 1,
  "cleaned_dos1": "",
  "cleaned_dos2": "",
  "cleaned_total_charge": "",
  "line_items": [],
  "patient_acct_no": "",
  "patient_name": "X",
  "tin": ""
}
`
	assert.Equal(t, want, string(out))

	var back Record
	require.NoError(t, json.Unmarshal(out, &back))
	again, err := back.Encode()
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestKnownFieldsWinOverExtra(t *testing.T) {
	rec := Record{PatientName: "REAL", Extra: map[string]json.RawMessage{"patient_name": json.RawMessage(`"STALE"`)}}
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"patient_name":"REAL"`)
}

func TestAmountRejectsObjects(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"cleaned_total_charge": {"v": 1}}`), &rec)
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	orig := Record{
		LineItems: []LineItem{{CPT: "1", Extra: map[string]json.RawMessage{"k": json.RawMessage(`1`)}}},
		Extra:     map[string]json.RawMessage{"k": json.RawMessage(`1`)},
	}
	c := orig.Clone()
	c.LineItems[0].CPT = "2"
	c.LineItems[0].Extra["k"] = json.RawMessage(`2`)
	c.Extra["k"] = json.RawMessage(`2`)

	assert.Equal(t, "1", orig.LineItems[0].CPT)
	assert.Equal(t, `1`, string(orig.LineItems[0].Extra["k"]))
	assert.Equal(t, `1`, string(orig.Extra["k"]))
}
