package liquidation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backoffice-pricing/internal/liquidation"
)

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		from   liquidation.State
		event  liquidation.Event
		to     liquidation.State
		action liquidation.Action
		err    bool
	}{
		{from: liquidation.StateActive, event: liquidation.EventConfirm, to: liquidation.StatePending, action: liquidation.ActionUpdate},
		{from: liquidation.StatePending, event: liquidation.EventConfirm, to: liquidation.StatePending, action: liquidation.ActionUpdate},
		{from: liquidation.StatePending, event: liquidation.EventRevert, to: liquidation.StateActive, action: liquidation.ActionRevert},
		{from: liquidation.StateActive, event: liquidation.EventRevert, err: true},
		{from: liquidation.StateLiquidated, event: liquidation.EventConfirm, err: true},
		{from: liquidation.StateLiquidated, event: liquidation.EventRevert, err: true},
		{from: liquidation.State("archived"), event: liquidation.EventConfirm, err: true},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.event), func(t *testing.T) {
			tr, err := liquidation.Next(tc.from, tc.event)
			if tc.err {
				require.True(t, errors.Is(err, liquidation.ErrIllegalTransition))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.from, tr.From)
			require.Equal(t, tc.to, tr.To)
			require.Equal(t, tc.action, tr.Action)
		})
	}
}

func TestStateValid(t *testing.T) {
	require.True(t, liquidation.StatePending.Valid())
	require.False(t, liquidation.State("pending").Valid())
}
