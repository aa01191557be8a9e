package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"centroid/internal/filter"
)

func TestTranslateFilter_EmptyAndMatchesEverything(t *testing.T) {
	f := filter.Filter{And: []filter.Filter{}}
	qf := translateFilter(f, nil)
	require.Nil(t, qf)
	require.Empty(t, qf.GetMust())
}

func TestTranslateFilter_EmptyOrMatchesNothing(t *testing.T) {
	f := filter.Filter{Or: []filter.Filter{}}
	qf := translateFilter(f, nil)
	require.NotNil(t, qf)
	require.Len(t, qf.Must, 1)
	hasID := qf.Must[0].GetHasId()
	require.NotNil(t, hasID)
	require.Empty(t, hasID.HasId)
}

func TestTranslateFilter_CompareEq(t *testing.T) {
	f := filter.Filter{Compare: &filter.CompareNode{PropID: "author", Op: filter.OpEq, Literal: "alice"}}
	qf := translateFilter(f, nil)
	require.Len(t, qf.Must, 1)
	field := qf.Must[0].GetField()
	require.Equal(t, "properties.author", field.Key)
	require.Equal(t, "alice", field.Match.GetKeyword())
}

func TestTranslateFilter_ExcludedSnippetIDs(t *testing.T) {
	qf := translateFilter(filter.Filter{}, map[string]bool{"s1": true})
	require.Len(t, qf.MustNot, 1)
	field := qf.MustNot[0].GetField()
	require.Equal(t, "snippet_id", field.Key)
}

func TestTranslateFilter_AndOfCompares(t *testing.T) {
	f := filter.Filter{And: []filter.Filter{
		{Compare: &filter.CompareNode{PropID: "views", Op: filter.OpGt, Literal: 10.0}},
		{Compare: &filter.CompareNode{PropID: "author", Op: filter.OpEq, Literal: "bob"}},
	}}
	qf := translateFilter(f, nil)
	require.Len(t, qf.Must, 1)
	sub := qf.Must[0].GetFilter()
	require.Len(t, sub.Must, 2)
}

func TestTranslateFilter_CompareEqNumberPreservesFraction(t *testing.T) {
	f := filter.Filter{Compare: &filter.CompareNode{PropID: "rating", Op: filter.OpEq, Literal: 4.5}}
	qf := translateFilter(f, nil)
	require.Len(t, qf.Must, 1)
	field := qf.Must[0].GetField()
	require.Nil(t, field.Match)
	require.NotNil(t, field.Range)
	require.Equal(t, 4.5, field.Range.GetGte())
	require.Equal(t, 4.5, field.Range.GetLte())
}

func TestTranslateFilter_CompareInNumbers(t *testing.T) {
	f := filter.Filter{Compare: &filter.CompareNode{PropID: "rating", Op: filter.OpIn, Literal: []any{1.5, 2.0, 3.5}}}
	qf := translateFilter(f, nil)
	require.Len(t, qf.Must, 1)
	sub := qf.Must[0].GetFilter()
	require.Len(t, sub.Should, 3)
	for i, want := range []float64{1.5, 2.0, 3.5} {
		field := sub.Should[i].GetField()
		require.Equal(t, "properties.rating", field.Key)
		require.Equal(t, want, field.Range.GetGte())
		require.Equal(t, want, field.Range.GetLte())
	}
}

func TestTranslateFilter_CompareInStrings(t *testing.T) {
	f := filter.Filter{Compare: &filter.CompareNode{PropID: "category", Op: filter.OpIn, Literal: []any{"news", "sports"}}}
	qf := translateFilter(f, nil)
	require.Len(t, qf.Must, 1)
	field := qf.Must[0].GetField()
	require.Equal(t, []string{"news", "sports"}, field.Match.GetKeywords().GetStrings())
}
