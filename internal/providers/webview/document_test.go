package webview

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!doctype html>
<html>
<head>
  <title> Leave Planner </title>
  <script>var order = ["inline"];</script>
  <script src="js/app.js"></script>
  <script type="module" src="js/modern.js"></script>
  <script type="application/json">{"not": "code"}</script>
</head>
<body>
  <div id="root"></div>
  <script src="https://cdn.example.com/lib.js"></script>
  <script>order.push("tail");</script>
</body>
</html>`

func TestLoadDocumentRunsScriptsInOrder(t *testing.T) {
	r := newRenderer(t)
	ctx := context.Background()

	resolve := func(src string) ([]byte, error) {
		if src == "js/app.js" {
			return []byte(`order.push("bundle");`), nil
		}
		return nil, errors.New("not in bundle")
	}

	doc, err := r.LoadDocument(ctx, strings.NewReader(page), resolve)
	require.NoError(t, err)
	assert.Equal(t, "Leave Planner", doc.Title)
	assert.Equal(t, 3, doc.Scripts)
	assert.Equal(t, []string{"https://cdn.example.com/lib.js"}, doc.Skipped)

	v, err := r.Eval(ctx, `order.join(",")`)
	require.NoError(t, err)
	assert.Equal(t, "inline,bundle,tail", v)

	// Page scripts replay on reload.
	require.NoError(t, r.Reload(ctx))
	v, err = r.Eval(ctx, `order.join(",")`)
	require.NoError(t, err)
	assert.Equal(t, "inline,bundle,tail", v)
}

func TestLoadDocumentWithoutResolver(t *testing.T) {
	r := newRenderer(t)

	doc, err := r.LoadDocument(context.Background(), strings.NewReader(page), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Scripts)
	assert.Equal(t, []string{"js/app.js", "https://cdn.example.com/lib.js"}, doc.Skipped)
}

func TestLoadDocumentStopsOnScriptError(t *testing.T) {
	r := newRenderer(t)

	_, err := r.LoadDocument(context.Background(), strings.NewReader(
		`<script>var a = 1;</script><script>throw new Error("boom")</script><script>var c = 3;</script>`,
	), nil)
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Index)

	v, err := r.Eval(context.Background(), `typeof c`)
	require.NoError(t, err)
	assert.Equal(t, "undefined", v)
}
