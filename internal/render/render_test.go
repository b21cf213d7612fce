package render

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/vizagent/internal/sandbox"
)

func tinyPNG(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestViewsPrecedence(t *testing.T) {
	results := []sandbox.Result{
		{PNG: tinyPNG(t, 4, 3), Text: "<Figure size 1000x600 with 1 Axes>"},
		{Data: json.RawMessage(`{"region":{"0":"North"}}`), Text: "  region\n0  North"},
		{Text: "42"},
		{Data: json.RawMessage(`{}`)},
	}
	views, err := Views(results, "")
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.Equal(t, KindImage, views[0].Kind)
	assert.Equal(t, 4, views[0].Width)
	assert.Equal(t, 3, views[0].Height)
	assert.Contains(t, views[0].DataURI, "data:image/png;base64,")
	assert.Equal(t, "Generated Visualization", views[0].Caption)

	assert.Equal(t, KindTable, views[1].Kind)
	assert.Equal(t, []string{"", "region"}, views[1].Table.Columns)

	assert.Equal(t, KindText, views[2].Kind)
	assert.Equal(t, "42", views[2].Text)
}

func TestViewsAppendsStdout(t *testing.T) {
	views, err := Views(nil, "Top region: North\n")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Output", views[0].Caption)
	assert.Equal(t, "Top region: North", views[0].Text)
}

func TestViewsNothingToShow(t *testing.T) {
	_, err := Views([]sandbox.Result{{Text: "  "}, {Data: json.RawMessage(`[]`)}}, " \n")
	assert.ErrorIs(t, err, ErrNothingToShow)
}

func TestBrokenImageBecomesErrorView(t *testing.T) {
	views, err := Views([]sandbox.Result{{PNG: "not-base64!"}, {PNG: base64.StdEncoding.EncodeToString([]byte("GIF89a"))}}, "")
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		assert.Equal(t, KindError, v.Kind)
		assert.Contains(t, v.Text, "Error displaying image")
	}
}

func TestTableFromPandasColumnsKeepsOrder(t *testing.T) {
	// sorted by sales descending, so the index is not monotonic
	raw := json.RawMessage(`{"region":{"2":"West","0":"North","1":"South"},"sales":{"2":30.5,"0":20,"1":null}}`)
	tbl := TableFrom(raw)
	assert.Equal(t, []string{"", "region", "sales"}, tbl.Columns)
	assert.Equal(t, [][]string{
		{"2", "West", "30.5"},
		{"0", "North", "20"},
		{"1", "South", ""},
	}, tbl.Rows)
}

func TestTableFromColumnLists(t *testing.T) {
	tbl := TableFrom(json.RawMessage(`{"b":[1,2],"a":["x"]}`))
	assert.Equal(t, []string{"", "b", "a"}, tbl.Columns)
	assert.Equal(t, [][]string{{"0", "1", "x"}, {"1", "2", ""}}, tbl.Rows)
}

func TestTableFromRecords(t *testing.T) {
	tbl := TableFrom(json.RawMessage(`[{"name":"a","n":1},{"name":"b","extra":true}]`))
	assert.Equal(t, []string{"name", "n", "extra"}, tbl.Columns)
	assert.Equal(t, [][]string{{"a", "1", ""}, {"b", "", "true"}}, tbl.Rows)
}

func TestTableFromFallsBackToJSON(t *testing.T) {
	tbl := TableFrom(json.RawMessage(`{"k":"scalar"}`))
	assert.Equal(t, []string{"value"}, tbl.Columns)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "{\n  \"k\": \"scalar\"\n}", tbl.Rows[0][0])
}

func TestCell(t *testing.T) {
	assert.Equal(t, "", Cell(nil))
	assert.Equal(t, "", Cell(json.RawMessage("null")))
	assert.Equal(t, "hi", Cell(json.RawMessage(`"hi"`)))
	assert.Equal(t, "1e+21", Cell(json.RawMessage("1e+21")))
	assert.Equal(t, `[1,2]`, Cell(json.RawMessage("[1, 2]")))
}
