package codex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocabulary = []string{"食費", "日用品", "その他"}

// fakeRunner records invocations and serves canned stdout.
type fakeRunner struct {
	err    error
	output string
	args   [][]string
	block  bool
}

func (f *fakeRunner) run(ctx context.Context, _ string, args []string) ([]byte, error) {
	f.args = append(f.args, args)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.output), nil
}

func newTestClient(f *fakeRunner) *Client {
	c := NewClient(Config{ClassifyTimeout: 5 * time.Second, OCRTimeout: 5 * time.Second})
	c.run = f.run
	return c
}

func TestClassifySuccess(t *testing.T) {
	f := &fakeRunner{output: `{"category":"食費","confidence":0.92}`}
	c := newTestClient(f)

	res := c.Classify(context.Background(), ClassifyInput{ProductName: "コーヒー", Amount: 450}, testVocabulary, Options{Model: "test-model"})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, "食費", res.Category)
	assert.Equal(t, 0.92, res.Confidence)
	assert.False(t, res.Substituted)
}

func TestClassifyOutOfVocabularyFallsBack(t *testing.T) {
	f := &fakeRunner{output: `{"category":"宇宙開発","confidence":0.95}`}
	c := newTestClient(f)

	res := c.Classify(context.Background(), ClassifyInput{ProductName: "ロケット"}, testVocabulary, Options{})

	require.True(t, res.Success)
	assert.Equal(t, "その他", res.Category, "should prefer the other-equivalent bucket")
	assert.True(t, res.Substituted)
	assert.LessOrEqual(t, res.Confidence, FallbackConfidenceCap)
}

func TestClassifyFallbackWithoutOtherBucket(t *testing.T) {
	f := &fakeRunner{output: `{"category":"bogus","confidence":0.95}`}
	c := newTestClient(f)

	res := c.Classify(context.Background(), ClassifyInput{}, []string{"食費", "日用品"}, Options{})

	require.True(t, res.Success)
	assert.Equal(t, "食費", res.Category, "falls back to first category in list")
}

func TestClassifyNonNumericConfidence(t *testing.T) {
	f := &fakeRunner{output: `{"category":"食費","confidence":"high"}`}
	c := newTestClient(f)

	res := c.Classify(context.Background(), ClassifyInput{}, testVocabulary, Options{})

	require.True(t, res.Success)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestClassifyNullCategory(t *testing.T) {
	f := &fakeRunner{output: `{"category":null,"confidence":0.1}`}
	c := newTestClient(f)

	res := c.Classify(context.Background(), ClassifyInput{}, testVocabulary, Options{})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no category")
}

func TestClassifyTimeout(t *testing.T) {
	f := &fakeRunner{block: true}
	c := NewClient(Config{ClassifyTimeout: 50 * time.Millisecond})
	c.run = f.run

	res := c.Classify(context.Background(), ClassifyInput{}, testVocabulary, Options{})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}

func TestClassifySubprocessFailure(t *testing.T) {
	f := &fakeRunner{err: errors.New("exit status 1: boom")}
	c := newTestClient(f)

	res := c.Classify(context.Background(), ClassifyInput{}, testVocabulary, Options{})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "codex exec failed")
}

func TestClassifyUnparsableOutput(t *testing.T) {
	f := &fakeRunner{output: "I refuse to emit JSON"}
	c := newTestClient(f)

	res := c.Classify(context.Background(), ClassifyInput{}, testVocabulary, Options{})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "parse")
}

func TestClassifyCleansUpTempFiles(t *testing.T) {
	f := &fakeRunner{output: `{"category":"食費","confidence":0.9}`}
	c := newTestClient(f)

	c.Classify(context.Background(), ClassifyInput{}, testVocabulary, Options{})

	require.Len(t, f.args, 1)
	for _, path := range tempFileArgs(f.args[0]) {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "temp file %s should be removed", path)
	}
}

func TestClassifyCleansUpTempFilesOnFailure(t *testing.T) {
	f := &fakeRunner{err: errors.New("exit status 2")}
	c := newTestClient(f)

	c.Classify(context.Background(), ClassifyInput{}, testVocabulary, Options{})

	require.Len(t, f.args, 1)
	for _, path := range tempFileArgs(f.args[0]) {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "temp file %s should be removed on failure too", path)
	}
}

func TestClassifyArgs(t *testing.T) {
	f := &fakeRunner{output: `{"category":"食費","confidence":0.9}`}
	c := newTestClient(f)

	c.Classify(context.Background(), ClassifyInput{}, testVocabulary, Options{
		Model:         "test-model",
		SandboxMode:   "read-only",
		SkipRepoCheck: true,
	})

	require.Len(t, f.args, 1)
	args := f.args[0]
	assert.Equal(t, "exec", args[0])
	assert.Contains(t, args, "--skip-git-repo-check")
	assert.Contains(t, args, "--sandbox")
	assert.Contains(t, args, "test-model")
	assert.Contains(t, args, "--output-schema")
}

func TestProcessReceiptMissingImage(t *testing.T) {
	c := newTestClient(&fakeRunner{})

	res := c.ProcessReceipt(context.Background(), "/nonexistent/receipt.jpg", testVocabulary, Options{})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
}

func TestProcessReceiptSuccess(t *testing.T) {
	image := writeTestImage(t)
	f := &fakeRunner{output: `{"store":"マルエツ","date":"2024/05/12","time":null,` +
		`"payment":{"method":"cash","amount":1200,"card_brand":null,"card_last4":null},` +
		`"points":null,` +
		`"items":[{"name":"コーヒー","quantity":1,"unit_price":450,"line_total":450,"category":"食費"},` +
		`{"name":"謎の商品","quantity":1,"unit_price":100,"line_total":100,"category":"未知カテゴリ"}]}`}
	c := newTestClient(f)

	res := c.ProcessReceipt(context.Background(), image, testVocabulary, Options{Model: "test-model"})

	require.True(t, res.Success, "error: %s", res.Error)
	require.NotNil(t, res.Data)
	assert.Equal(t, "マルエツ", *res.Data.Store)
	require.Len(t, res.Data.Items, 2)

	assert.Equal(t, "食費", *res.Data.Items[0].Category)
	assert.False(t, res.Data.Items[0].CategorySubstituted)

	// Out-of-vocabulary item category replaced by the fallback.
	assert.Equal(t, "その他", *res.Data.Items[1].Category)
	assert.True(t, res.Data.Items[1].CategorySubstituted)

	assert.NotEmpty(t, res.RawOutput)
}

func TestProcessReceiptEmptyOutput(t *testing.T) {
	image := writeTestImage(t)
	c := newTestClient(&fakeRunner{output: ""})

	res := c.ProcessReceipt(context.Background(), image, testVocabulary, Options{})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no output")
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receipt.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not really a jpeg"), 0o600))
	return path
}

// tempFileArgs pulls the schema/input temp file paths out of an arg list.
func tempFileArgs(args []string) []string {
	var paths []string
	for i, a := range args {
		if (a == "--output-schema" || a == "-i") && i+1 < len(args) {
			paths = append(paths, args[i+1])
		}
	}
	return paths
}
