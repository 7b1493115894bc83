package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateOps(t *testing.T) {
	m := newTestMission()

	t.Run("invalid parent on add", func(t *testing.T) {
		err := ValidateOps(m, []Op{AddEventOp{ParentID: "missing", Name: "X"}})
		require.ErrorIs(t, err, ErrInvalidParent)
	})

	t.Run("add at top level", func(t *testing.T) {
		require.NoError(t, ValidateOps(m, []Op{AddEventOp{Name: "X", Kind: KindAction}}))
	})

	t.Run("add index out of range", func(t *testing.T) {
		err := ValidateOps(m, []Op{AddEventOp{ParentID: "trg", Index: intPtr(3)}})
		require.ErrorIs(t, err, ErrInvalidIndex)
	})

	t.Run("index accounts for earlier adds", func(t *testing.T) {
		err := ValidateOps(m, []Op{
			AddEventOp{ParentID: "act"},
			AddEventOp{ParentID: "act", Index: intPtr(1)},
		})
		require.NoError(t, err)
	})

	t.Run("unknown kind", func(t *testing.T) {
		err := ValidateOps(m, []Op{AddEventOp{Kind: Kind("timer")}})
		require.ErrorIs(t, err, ErrInvalidKind)
	})

	t.Run("params with a gap", func(t *testing.T) {
		attrs := Attributes{Param(1, "a"), Param(3, "c")}
		err := ValidateOps(m, []Op{UpdateEventOp{EventID: "act", Attributes: &attrs}})
		require.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("params out of list order", func(t *testing.T) {
		attrs := Attributes{Param(2, "b"), Param(1, "a")}
		err := ValidateOps(m, []Op{UpdateEventOp{EventID: "act", Attributes: &attrs}})
		require.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("attribute lists", func(t *testing.T) {
		cases := []struct {
			name  string
			attrs Attributes
			want  error
		}{
			{"key with space", Attributes{Literal("bad key", "v")}, ErrInvalidAttribute},
			{"empty key", Attributes{Literal("", "v")}, ErrInvalidAttribute},
			{"duplicate key", Attributes{Literal("delay", "1"), Literal("delay", "2")}, ErrInvalidAttribute},
			{"two name entries", Attributes{NameElement("x"), NameElement("y")}, ErrInvalidAttribute},
			{"unknown kind", Attributes{{Kind: "bogus", Key: "x", Value: "y"}}, ErrInvalidAttribute},
			{"control character in value", Attributes{Param(1, "a\x01b")}, ErrInvalidText},
			{"valid", Attributes{Literal("xml:lang", "en"), NameElement("spawn"), Param(1, ""), Param(2, "b")}, nil},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				err := ValidateOps(m, []Op{AddEventOp{Attributes: tc.attrs}})
				if tc.want == nil {
					require.NoError(t, err)
					return
				}
				require.ErrorIs(t, err, tc.want)
			})
		}
	})

	t.Run("illegal characters in name and content", func(t *testing.T) {
		bad := "a\x01b"
		require.ErrorIs(t, ValidateOps(m, []Op{AddEventOp{Name: bad}}), ErrInvalidText)
		require.ErrorIs(t, ValidateOps(m, []Op{AddEventOp{Content: &bad}}), ErrInvalidText)
		require.ErrorIs(t, ValidateOps(m, []Op{UpdateEventOp{EventID: "act", Name: &bad}}), ErrInvalidText)
		require.ErrorIs(t, ValidateOps(m, []Op{UpdateEventOp{EventID: "act", Content: &bad}}), ErrInvalidText)
	})

	t.Run("update missing node", func(t *testing.T) {
		err := ValidateOps(m, []Op{UpdateEventOp{EventID: "nope", Name: StrPtr("x")}})
		require.ErrorIs(t, err, ErrInvalidNode)
	})

	t.Run("move creates cycle", func(t *testing.T) {
		err := ValidateOps(m, []Op{MoveEventOp{EventID: "trg", NewParentID: "act"}})
		require.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("move onto itself", func(t *testing.T) {
		err := ValidateOps(m, []Op{MoveEventOp{EventID: "act", NewParentID: "act"}})
		require.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("move to top level", func(t *testing.T) {
		require.NoError(t, ValidateOps(m, []Op{MoveEventOp{EventID: "act", NewIndex: intPtr(0)}}))
	})

	t.Run("delete then touch deleted child", func(t *testing.T) {
		err := ValidateOps(m, []Op{
			DeleteEventOp{EventID: "trg"},
			UpdateEventOp{EventID: "act", Name: StrPtr("x")},
		})
		require.ErrorIs(t, err, ErrInvalidNode)
	})
}

// newTestMission builds:
//
//	evt
//	trg
//	  act
func newTestMission() Mission {
	return Mission{
		Events: []ScriptEvent{
			{ID: "evt", Name: "Start", Kind: KindEvent},
			{ID: "trg", Name: "OnKill", Kind: KindTrigger, Children: []ScriptEvent{
				{ID: "act", Name: "Spawn", Kind: KindAction, Attributes: Attributes{NameElement("a_spawn"), Param(1, "zone1")}},
			}},
		},
	}
}

func intPtr(i int) *int {
	return &i
}
