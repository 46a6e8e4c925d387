package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOracle struct {
	verdict Verdict
	err     error

	mu    sync.Mutex
	calls int
}

func acceptAll() *fakeOracle {
	return &fakeOracle{verdict: Verdict{Accepted: true}}
}

func (f *fakeOracle) Evaluate(ctx context.Context, keywords []string, content string) (Verdict, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return Verdict{}, f.err
	}
	return f.verdict, nil
}

func (f *fakeOracle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestValidateKeywords(t *testing.T) {
	tests := []struct {
		name      string
		keywords  []string
		shouldErr bool
	}{
		{"single keyword", []string{"auth"}, false},
		{"several keywords", []string{"auth", "jwt", "token2"}, false},
		{"digits with letter", []string{"http2"}, false},
		{"empty set", nil, true},
		{"empty keyword", []string{""}, true},
		{"uppercase", []string{"Auth"}, true},
		{"digits only", []string{"42"}, true},
		{"punctuation", []string{"auth-token"}, true},
		{"whitespace", []string{"auth token"}, true},
		{"unicode", []string{"café"}, true},
		{"duplicate", []string{"auth", "auth"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKeywords(tt.keywords)
			if tt.shouldErr {
				var ve *ErrValidation
				require.Error(t, err)
				assert.ErrorAs(t, err, &ve)
				assert.NotEmpty(t, ve.Hint)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"plain words", "the quick brown fox", 4},
		{"punctuation ignored", "one, two... three!", 3},
		{"alphanumeric runs", "http2 and grpc4", 3},
		{"cjk only", "你好世界", 4},
		{"mixed scripts", "hello 世界 world", 4},
		{"cjk inside word run", "a你b", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountWords(tt.input))
		})
	}
}

func TestValidateContentSize(t *testing.T) {
	assert.NoError(t, ValidateContentSize(strings.Repeat("word ", MaxContentWords)))

	err := ValidateContentSize(strings.Repeat("word ", MaxContentWords+1))
	var ve *ErrValidation
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Hint, "1001 words")
}

func TestValidateContentOracleReject(t *testing.T) {
	oracle := &fakeOracle{verdict: Verdict{Accepted: false, Reason: "too trivial to keep"}}

	err := validateContent(context.Background(), oracle, []string{"auth"}, "some content")

	var ve *ErrValidation
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Hint, "too trivial to keep")
	assert.Equal(t, 1, oracle.callCount())
}

func TestValidateContentOracleFailureIsValidation(t *testing.T) {
	oracle := &fakeOracle{err: errors.New("api unreachable")}

	err := validateContent(context.Background(), oracle, []string{"auth"}, "some content")

	var ve *ErrValidation
	require.ErrorAs(t, err, &ve)
	assert.ErrorContains(t, errors.Unwrap(ve), "api unreachable")
}

func TestValidateContentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	oracle := &fakeOracle{err: context.Canceled}

	err := validateContent(ctx, oracle, []string{"auth"}, "some content")

	var ve *ErrValidation
	require.ErrorAs(t, err, &ve)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateContentSizeCheckedBeforeOracle(t *testing.T) {
	oracle := acceptAll()

	err := validateContent(context.Background(), oracle, []string{"auth"}, strings.Repeat("word ", MaxContentWords+1))

	assert.Error(t, err)
	assert.Equal(t, 0, oracle.callCount())
}

func TestValidateContentNilOracle(t *testing.T) {
	assert.NoError(t, validateContent(context.Background(), nil, []string{"auth"}, "content"))
}
