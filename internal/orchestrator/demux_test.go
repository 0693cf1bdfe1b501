package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscript-assist/internal/models"
	"manuscript-assist/internal/prompt"
)

func freeformState(out *[]string) *StreamState {
	return newStreamState(models.FormatFreeform, false, func(s string) error {
		*out = append(*out, s)
		return nil
	}, nil)
}

func TestDemuxFreeform_Phases(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"no reasoning", []string{"Hello", " there"}, "Hello there"},
		{"leading whitespace kept without reasoning", []string{"  Hi"}, "  Hi"},
		{"reasoning split across chunks", []string{"<th", "ink>plan", "ning</th", "ink>\n\nDone."}, "Done."},
		{"upper case markers", []string{"<THINK>x</Think> Out"}, "Out"},
		{"reasoning only once", []string{"<think>a</think>B <think>c</think>"}, "B <think>c</think>"},
		{"marker later in text is visible", []string{"Text <think>kept</think>"}, "Text <think>kept</think>"},
		{"lone angle bracket", []string{"<"}, "<"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out []string
			st := freeformState(&out)
			for _, c := range tt.chunks {
				require.NoError(t, st.feed(c))
			}
			require.NoError(t, st.finish())

			got := ""
			for _, s := range out {
				got += s
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDemuxFreeform_FinishIsIdempotent(t *testing.T) {
	var out []string
	st := freeformState(&out)
	require.NoError(t, st.feed("<think>never closed"))
	require.NoError(t, st.finish())
	require.NoError(t, st.finish())

	assert.Equal(t, []string{"never closed"}, out)
}

func TestDemuxStructured_KeepsPartialObject(t *testing.T) {
	var got []prompt.FragmentObject
	st := newStreamState(models.FormatStructured, false, nil, func(f prompt.FragmentObject) error {
		got = append(got, f)
		return nil
	})

	require.NoError(t, st.feed(`{"fragments":[{ "fragmentIndex":1,"fragmentContent":"a`))
	assert.Empty(t, got)
	assert.Positive(t, st.pendingFragment())

	require.NoError(t, st.feed(`b","sourceFragments":["x","y"]}]}`))
	require.Len(t, got, 1)
	assert.Equal(t, "ab", got[0].FragmentContent)
	assert.Equal(t, []string{"x", "y"}, got[0].SourceFragments)
	assert.Zero(t, st.pendingFragment())
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "plain", stripCodeFence("plain"))
	assert.Equal(t, "body", stripCodeFence("```\nbody\n```"))
	assert.Equal(t, "body", stripCodeFence("```text\nbody```"))
	assert.Equal(t, "", stripCodeFence("```"))
}

func TestProgress(t *testing.T) {
	input := []string{"a", "b", "c"}
	var p Progress

	p.record(1, len(input))
	assert.Equal(t, []string{"b", "c"}, p.Remaining(input))
	assert.False(t, p.Complete(input))

	p.record(0, len(input))
	assert.Equal(t, []string{"c"}, p.Remaining(input))

	p.record(5, len(input))
	assert.Empty(t, p.Remaining(input))
	assert.True(t, p.Complete(input))
	assert.Equal(t, 3, p.Consumed)
	assert.Equal(t, 3, p.Emitted)
}
