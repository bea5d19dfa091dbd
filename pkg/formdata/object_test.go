package formdata

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		path    string
		want    []Segment
		wantErr bool
	}{
		{path: "a", want: []Segment{{Key: "a"}}},
		{path: "a.b.c", want: []Segment{{Key: "a"}, {Key: "b"}, {Key: "c"}}},
		{path: "dep[2].nm", want: []Segment{{Key: "dep"}, {Index: 2, IsIndex: true}, {Key: "nm"}}},
		{path: "m[0][1]", want: []Segment{{Key: "m"}, {Index: 0, IsIndex: true}, {Index: 1, IsIndex: true}}},
		{path: "", wantErr: true},
		{path: "a..b", wantErr: true},
		{path: "[0].a", wantErr: true},
		{path: "a[x]", wantErr: true},
		{path: "a[1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ParsePath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.path, JoinPath(got))
		})
	}
}

func TestObjectOrder(t *testing.T) {
	o := New()
	o.Set("z", "1")
	o.Set("a", "2")
	o.Set("m", "3")
	o.Set("a", "4")

	assert.Equal(t, []string{"z", "a", "m"}, o.Keys())
	assert.Equal(t, "4", o.String("a"))

	o.Delete("z")
	assert.Equal(t, []string{"a", "m"}, o.Keys())
	assert.Equal(t, 2, o.Len())
}

func TestSetPathAndLookup(t *testing.T) {
	o := New()
	require.NoError(t, o.SetPath("infoEmpregador.inclusao.idePeriodo.iniValid", "2024-01"))
	require.NoError(t, o.SetPath("dependente[1].nmDep", "Ana"))
	require.NoError(t, o.SetPath("dependente[0].nmDep", "Rui"))

	v, ok := o.Lookup("infoEmpregador.inclusao.idePeriodo.iniValid")
	require.True(t, ok)
	assert.Equal(t, "2024-01", v)

	v, ok = o.Lookup("dependente[0].nmDep")
	require.True(t, ok)
	assert.Equal(t, "Rui", v)

	v, ok = o.Lookup("dependente[1].nmDep")
	require.True(t, ok)
	assert.Equal(t, "Ana", v)

	_, ok = o.Lookup("dependente[5].nmDep")
	assert.False(t, ok)

	err := o.SetPath("infoEmpregador.inclusao.idePeriodo.iniValid.x", "bad")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestExpand(t *testing.T) {
	flat := New()
	flat.Set("tpAmb", json.Number("2"))
	flat.Set("ideEvento.indRetif", "1")
	flat.Set("infoRubrica.inclusao.ideRubrica.codRubr", "R001")
	flat.Set("infoRubrica.inclusao.ideRubrica.ideTabRubr", "T1")

	nested, err := Expand(flat)
	require.NoError(t, err)

	assert.Equal(t, []string{"tpAmb", "ideEvento", "infoRubrica"}, nested.Keys())
	v, ok := nested.Lookup("infoRubrica.inclusao.ideRubrica.ideTabRubr")
	require.True(t, ok)
	assert.Equal(t, "T1", v)
}

func TestMerge(t *testing.T) {
	base := New()
	require.NoError(t, base.SetPath("a.b", ""))
	require.NoError(t, base.SetPath("a.c", ""))
	overlay := New()
	require.NoError(t, overlay.SetPath("a.c", "x"))
	require.NoError(t, overlay.SetPath("d", "y"))

	base.Merge(overlay)

	assert.Equal(t, []string{"a", "d"}, base.Keys())
	a, _ := base.Get("a")
	assert.Equal(t, []string{"b", "c"}, a.(*Object).Keys())
	assert.Equal(t, "x", a.(*Object).String("c"))

	// the overlay must not be aliased into the target
	require.NoError(t, overlay.SetPath("d", "z"))
	assert.Equal(t, "y", base.String("d"))
}

func TestDecodeJSONKeepsOrder(t *testing.T) {
	in := `{"zeta":1,"alpha":{"y":"a","b":[{"k":true},null]},"mid":"0012"}`
	o, err := Decode(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, o.Keys())
	v, _ := o.Get("zeta")
	assert.Equal(t, json.Number("1"), v)
	v, ok := o.Lookup("alpha.b[0].k")
	require.True(t, ok)
	assert.Equal(t, true, v)

	out, err := json.Marshal(o)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
	assert.True(t, strings.Index(string(out), "zeta") < strings.Index(string(out), "alpha"))
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := Decode(strings.NewReader(`[1,2]`))
	assert.Error(t, err)
}

func TestUnmarshalYAML(t *testing.T) {
	src := `
tpAmb: 2
nrInsc: ""
ideEvento:
  indRetif: 1
  nrRecibo: null
infoEmpregador:
  inclusao:
    idePeriodo:
      iniValid: "2024-01"
    flag: true
`
	var o Object
	require.NoError(t, yaml.Unmarshal([]byte(src), &o))

	assert.Equal(t, []string{"tpAmb", "nrInsc", "ideEvento", "infoEmpregador"}, o.Keys())
	v, _ := o.Get("tpAmb")
	assert.Equal(t, json.Number("2"), v)
	v, ok := o.Lookup("ideEvento.nrRecibo")
	assert.True(t, ok)
	assert.Nil(t, v)
	v, _ = o.Lookup("infoEmpregador.inclusao.idePeriodo.iniValid")
	assert.Equal(t, "2024-01", v)
	v, _ = o.Lookup("infoEmpregador.inclusao.flag")
	assert.Equal(t, true, v)
}

func TestFlattenRoundTrip(t *testing.T) {
	o := New()
	require.NoError(t, o.SetPath("a.b", "1"))
	require.NoError(t, o.SetPath("a.l[0].x", "2"))
	require.NoError(t, o.SetPath("c", json.Number("3")))

	fields := o.Flatten()
	assert.Equal(t, []Field{
		{Path: "a.b", Value: "1"},
		{Path: "a.l[0].x", Value: "2"},
		{Path: "c", Value: json.Number("3")},
	}, fields)

	back, err := Unflatten(fields)
	require.NoError(t, err)
	assert.Equal(t, o.Flatten(), back.Flatten())
}

func TestIsEmptyAndText(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(""))
	assert.False(t, IsEmpty("0"))
	assert.False(t, IsEmpty(json.Number("0")))
	assert.False(t, IsEmpty(false))

	s, ok := Text(json.Number("12.50"))
	assert.True(t, ok)
	assert.Equal(t, "12.50", s)
	s, _ = Text(7)
	assert.Equal(t, "7", s)
	_, ok = Text(New())
	assert.False(t, ok)
}

func TestMergeLists(t *testing.T) {
	base := New()
	require.NoError(t, base.SetPath("dmDev[0].ideDmDev", ""))
	require.NoError(t, base.SetPath("dmDev[0].codCateg", json.Number("101")))
	overlay := New()
	require.NoError(t, overlay.SetPath("dmDev[1].ideDmDev", "B"))
	require.NoError(t, overlay.SetPath("dmDev[0].ideDmDev", "A"))

	base.Merge(overlay)

	v, _ := base.Lookup("dmDev[0].ideDmDev")
	assert.Equal(t, "A", v)
	v, _ = base.Lookup("dmDev[0].codCateg")
	assert.Equal(t, json.Number("101"), v)
	v, _ = base.Lookup("dmDev[1].ideDmDev")
	assert.Equal(t, "B", v)
}
