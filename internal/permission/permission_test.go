package permission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonlounge/anonlounge/internal/permission"
)

func TestUnionIsInclusive(t *testing.T) {
	pairs := []struct {
		a, b permission.Permission
	}{
		{permission.Receive, permission.Ban},
		{permission.SendText, permission.SendMedia},
		{permission.None, permission.All},
		{permission.BypassAntiflood | permission.Kick, permission.SendPoll},
	}
	for _, pair := range pairs {
		u := permission.Union(pair.a, pair.b)
		assert.True(t, u.Has(pair.a))
		assert.True(t, u.Has(pair.b))
	}
}

func TestHasIsSubsetTest(t *testing.T) {
	mask := permission.Receive | permission.SendText
	assert.True(t, mask.Has(permission.Receive))
	assert.True(t, mask.Has(permission.SendPlain))
	assert.True(t, mask.Has(permission.None))
	assert.False(t, mask.Has(permission.Ban))
	assert.False(t, mask.Has(permission.SendText|permission.Ban))
	assert.True(t, permission.All.Has(mask))
}

func TestParse(t *testing.T) {
	p, err := permission.Parse("receive")
	require.NoError(t, err)
	assert.Equal(t, permission.Receive, p)

	p, err = permission.Parse(" Send_Text ")
	require.NoError(t, err)
	assert.Equal(t, permission.SendText, p)

	p, err = permission.Parse("ALL")
	require.NoError(t, err)
	assert.Equal(t, permission.All, p)

	_, err = permission.Parse("FLY")
	assert.ErrorIs(t, err, permission.ErrInvalidPermission)
}

func TestParseList(t *testing.T) {
	mask, err := permission.ParseList("RECEIVE SEND_TEXT SEND_PHOTO")
	require.NoError(t, err)
	assert.Equal(t, permission.Receive|permission.SendText|permission.SendPhoto, mask)

	_, err = permission.ParseList("RECEIVE BOGUS")
	assert.ErrorIs(t, err, permission.ErrInvalidPermission)
}

func TestListAndString(t *testing.T) {
	mask := permission.Ban | permission.Receive
	assert.Equal(t, []string{"RECEIVE", "BAN"}, mask.List())
	assert.Equal(t, "RECEIVE|BAN", mask.String())
	assert.Equal(t, "NONE", permission.None.String())
	assert.Equal(t, "ALL", permission.All.String())
}

func TestCompositesAreUnions(t *testing.T) {
	assert.True(t, permission.SendText.Has(permission.SendPlain))
	assert.True(t, permission.SendText.Has(permission.SendPre))
	assert.True(t, permission.SendMedia.Has(permission.SendPhoto))
	assert.False(t, permission.SendMedia.Has(permission.SendStickersGifs))
}
